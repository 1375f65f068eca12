package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/skimmer/internal/spot"
	"github.com/roach88/skimmer/internal/store"
)

// SpotsOptions holds flags for the spots command.
type SpotsOptions struct {
	*RootOptions
	Database string
	Callsign string
	Session  string
	Band     int
	Limit    int
}

// NewSpotsCommand creates the spots command.
func NewSpotsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SpotsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "spots",
		Short: "List stored spots",
		Long: `List the most recent spots stored by "skimmer run --db" or
"skimmer parse --db", oldest first.

Example:
  skimmer spots --db spots.db --call K1ABC
  skimmer spots --db spots.db --band 20 --limit 50 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpots(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default store.path)")
	cmd.Flags().StringVar(&opts.Callsign, "call", "", "only spots of this callsign")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only spots of this feed session")
	cmd.Flags().IntVar(&opts.Band, "band", 0, "only spots on this band (meters)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of most recent spots (0 for all)")

	return cmd
}

func runSpots(opts *SpotsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, _, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	path := firstNonEmpty(opts.Database, cfg.Store.Path)
	if path == "" {
		_ = formatter.Error(ErrCodeStore, "no database: pass --db or set store.path", nil)
		return NewExitError(ExitCommandError, "no database")
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --limit %d", opts.Limit))
	}

	st, err := store.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, fmt.Sprintf("cannot open %s", path), err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := st.ReadSpots(ctx, store.SpotQuery{
		Callsign:  opts.Callsign,
		SessionID: opts.Session,
		Band:      opts.Band,
		Limit:     opts.Limit,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeStore, "cannot read spots", err.Error())
		return WrapExitError(ExitFailure, "failed to read spots", err)
	}
	formatter.VerboseLog("Read %d spots from %s", len(records), path)

	if opts.Format == "json" {
		return formatter.Success(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "No spots.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(formatter.Writer, "%s  ", r.Received.UTC().Format("2006-01-02 15:04:05"))
		writeSpotLine(formatter.Writer, r.Spot)
	}
	return nil
}

// writeSpotLine renders one spot as a single text line.
func writeSpotLine(w io.Writer, s spot.Spot) {
	band := "  -"
	if b := s.Band(); b > 0 {
		band = fmt.Sprintf("%dm", b)
	}
	fmt.Fprintf(w, "%s  %-10s %9.1f  %4s  %2s dB  %2d WPM  de %s\n",
		s.Zulu, s.Callsign, s.Frequency, band, s.SNR, s.WPM, s.Spotter)
}
