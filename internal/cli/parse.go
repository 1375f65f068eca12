package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skimmer/internal/spot"
	"github.com/roach88/skimmer/internal/store"
)

// ParseOptions holds flags for the parse command.
type ParseOptions struct {
	*RootOptions
	Rejects  bool
	Database string
}

// ParseResult is the JSON payload of the parse command.
type ParseResult struct {
	Spots   []spot.Spot   `json:"spots"`
	Rejects []RejectEntry `json:"rejects,omitempty"`
	Stats   spot.Stats    `json:"stats"`
}

// RejectEntry is one rejected line.
type RejectEntry struct {
	Code spot.RejectCode `json:"code"`
	Line string          `json:"line"`
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "parse [capture-file]",
		Short: "Parse a captured feed offline",
		Long: `Parse a captured spot feed from a file, or stdin when no file is given.

Lines may end in CRLF or LF. The band filter from the config applies.
With --db the accepted spots and rejected lines are stored without a
session.

Example:
  skimmer parse capture.txt --rejects
  nc telnet.reversebeacon.net 7000 | tee capture.txt | skimmer parse`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Rejects, "rejects", false, "list rejected lines")
	cmd.Flags().StringVar(&opts.Database, "db", "", "store parsed spots in this SQLite database")

	return cmd
}

// collector keeps everything the pipeline emits.
type collector struct {
	spots   []spot.Spot
	rejects []RejectEntry
}

func (c *collector) Spot(s spot.Spot) { c.spots = append(c.spots, s) }

func (c *collector) Reject(re *spot.RejectError) {
	c.rejects = append(c.rejects, RejectEntry{Code: re.Code, Line: re.Line})
}

func runParse(opts *ParseOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	bands, err := cfg.BandFilter()
	if err != nil {
		return WrapExitError(ExitCommandError, "bad band filter", err)
	}

	var data []byte
	source := "stdin"
	if len(args) == 1 {
		source = args[0]
		data, err = os.ReadFile(source)
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		code := ErrCodeGeneric
		if errors.Is(err, fs.ErrNotExist) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, fmt.Sprintf("cannot read %s", source), err.Error())
		return WrapExitError(ExitCommandError, "failed to read capture", err)
	}
	formatter.VerboseLog("Read %d bytes from %s", len(data), source)

	sink := &collector{}
	pipeline := spot.NewPipeline(sink, spot.WithBands(bands), spot.WithLogger(logger))
	pipeline.Feed(toCRLF(data))
	stats := pipeline.Stats()

	if path := opts.Database; path != "" {
		if err := storeParsed(cmd.Context(), path, sink); err != nil {
			_ = formatter.Error(ErrCodeStore, "cannot store parsed spots", err.Error())
			return WrapExitError(ExitCommandError, "failed to store spots", err)
		}
		formatter.VerboseLog("Stored %d spots and %d rejections in %s", len(sink.spots), len(sink.rejects), path)
	}

	result := ParseResult{Spots: sink.spots, Stats: stats}
	if result.Spots == nil {
		result.Spots = []spot.Spot{}
	}
	if opts.Rejects {
		result.Rejects = sink.rejects
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, s := range sink.spots {
		writeSpotLine(w, s)
	}
	if opts.Rejects {
		for _, r := range sink.rejects {
			fmt.Fprintf(w, "✗ %-13s %q\n", r.Code, r.Line)
		}
	}
	fmt.Fprintf(w, "%d lines: %d accepted, %d rejected, %d discarded, %d filtered\n",
		stats.Lines, stats.Accepted, stats.Rejected, stats.Discarded, stats.Filtered)
	return nil
}

// toCRLF rewrites bare LF line endings to CRLF and terminates a trailing
// partial line, so captures saved with either convention split the same
// way as the live feed.
func toCRLF(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	out := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	if !bytes.HasSuffix(out, []byte("\r\n")) {
		out = append(out, '\r', '\n')
	}
	return out
}

func storeParsed(ctx context.Context, path string, c *collector) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now()
	for _, s := range c.spots {
		if _, err := st.WriteSpot(ctx, "", now, s); err != nil {
			return err
		}
	}
	for _, r := range c.rejects {
		if err := st.WriteRejection(ctx, "", now, &spot.RejectError{Code: r.Code, Line: r.Line}); err != nil {
			return err
		}
	}
	return nil
}
