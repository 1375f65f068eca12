package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skimmer/internal/fsm"
	"github.com/roach88/skimmer/internal/metrics"
	"github.com/roach88/skimmer/internal/rbn"
	"github.com/roach88/skimmer/internal/reactor"
	"github.com/roach88/skimmer/internal/spot"
	"github.com/roach88/skimmer/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Callsign    string
	Clusters    string
	Database    string
	MetricsAddr string
	All         bool

	// SessionIDs allows overriding the session id generator (for testing).
	// If nil, the client uses UUIDv7Generator.
	SessionIDs rbn.SessionIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the spot feed and print spots",
		Long: `Connect to the configured clusters, log in with the callsign and print
every accepted spot until interrupted.

Each callsign is printed at most once per notify.renotify_delay unless --all
is given. With --db every spot, rejected line and session is stored.

Example:
  skimmer run --callsign K7MJG
  skimmer run --clusters "LOCALHOST_MASTER RBN" --db spots.db --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Callsign, "callsign", "", "login callsign (overrides callsign)")
	cmd.Flags().StringVar(&opts.Clusters, "clusters", "", "cluster selection, comma or space separated (overrides clusters)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides store.path)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.listen_addr)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "print every spot, ignoring the renotify delay")

	return cmd
}

func runClient(opts *RunOptions, cmd *cobra.Command) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	if opts.Callsign != "" {
		cfg.Callsign = strings.ToUpper(opts.Callsign)
	}
	if opts.Clusters != "" {
		cfg.Clusters = rbn.ParseClusterList(opts.Clusters)
	}
	if err := cfg.RequireCallsign(); err != nil {
		return WrapExitError(ExitCommandError, "no callsign", err)
	}
	clusters, err := cfg.ResolveClusters()
	if err != nil {
		return WrapExitError(ExitCommandError, "bad cluster selection", err)
	}
	bands, err := cfg.BandFilter()
	if err != nil {
		return WrapExitError(ExitCommandError, "bad band filter", err)
	}

	var st *store.Store
	if path := firstNonEmpty(opts.Database, cfg.Store.Path); path != "" {
		logger.Info("opening database", "path", path)
		st, err = store.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		if keep := cfg.Store.Retention; keep > 0 {
			n, err := st.Prune(cmd.Context(), time.Now().Add(-keep))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to prune database", err)
			}
			logger.Info("pruned old spots", "deleted", n, "retention", keep)
		}
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reg *metrics.Registry
	var serveDone <-chan error
	if addr := firstNonEmpty(opts.MetricsAddr, cfg.Metrics.ListenAddr); addr != "" {
		reg = metrics.NewRegistry()
		_, serveDone, err = metrics.Serve(ctx, addr, reg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
	}

	sink := &feedSink{
		out:     opts.formatter(cmd),
		store:   st,
		tracker: spot.NewTracker(nil, cfg.Notify.RenotifyDelay),
		all:     opts.All,
		logger:  logger,
		ctx:     context.WithoutCancel(ctx),
		now:     time.Now,
	}
	popts := []spot.Option{
		spot.WithBands(bands),
		spot.WithTracker(sink.tracker),
		spot.WithLogger(logger),
	}
	if reg != nil {
		popts = append(popts, spot.WithMetrics(reg))
	}
	pipeline := spot.NewPipeline(sink, popts...)

	closed := false
	copts := []rbn.Option{
		rbn.WithPayload(pipeline.Feed),
		rbn.WithTimeouts(cfg.ClientTimeouts()),
		rbn.WithLogger(logger),
		rbn.WithDebug(opts.Verbose),
		rbn.WithOnSession(func(info rbn.SessionInfo) {
			pipeline.Reset()
			sink.begin(info)
		}),
		rbn.WithOnClosed(func() {
			closed = true
			cancel()
		}),
	}
	if reg != nil {
		copts = append(copts, rbn.WithMetrics(reg))
	}
	if opts.SessionIDs != nil {
		copts = append(copts, rbn.WithSessionIDs(opts.SessionIDs))
	}

	sched := fsm.NewScheduler()
	r := reactor.New(sched,
		reactor.WithPollInterval(cfg.PollInterval),
		reactor.WithLogger(logger),
		reactor.WithDebug(opts.Verbose),
	)
	client, err := rbn.New(r, sched, cfg.Callsign, clusters, copts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create client", err)
	}
	client.OnTransition(func(from, to rbn.State) {
		if from == rbn.StateConnected {
			sink.end(to.String())
		}
	})
	defer client.Close()

	logger.Info("client starting", "callsign", cfg.Callsign, "clusters", clusterNames(clusters))
	runErr := r.Run(ctx)
	sink.end("shutdown")

	stats := pipeline.Stats()
	logger.Info("client stopped",
		"lines", stats.Lines,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"discarded", stats.Discarded,
		"filtered", stats.Filtered,
	)

	if serveDone != nil {
		cancel()
		if err := <-serveDone; err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "reactor failed", runErr)
	}
	if closed {
		return NewExitError(ExitFailure, "feed closed by client after a failed handshake or receive")
	}
	return nil
}

// feedSink receives pipeline output for the run command.
type feedSink struct {
	out     *OutputFormatter
	store   *store.Store
	tracker *spot.Tracker
	all     bool
	logger  *slog.Logger
	ctx     context.Context
	now     func() time.Time

	session string
}

func (s *feedSink) begin(info rbn.SessionInfo) {
	s.session = info.ID
	s.logger.Info("feed session started",
		"session", info.ID,
		"cluster", info.Cluster,
		"host", info.Candidate.Host,
		"port", info.Candidate.Port,
	)
	if s.store == nil {
		return
	}
	err := s.store.WriteSession(s.ctx, store.Session{
		ID:      info.ID,
		Cluster: info.Cluster,
		Host:    info.Candidate.Host,
		Port:    info.Candidate.Port,
		Started: info.Started,
	})
	if err != nil {
		s.logger.Error("store session", "session", info.ID, "error", err)
	}
}

func (s *feedSink) end(reason string) {
	if s.session == "" {
		return
	}
	s.logger.Info("feed session ended", "session", s.session, "next", reason)
	if s.store != nil {
		if err := s.store.EndSession(s.ctx, s.session, time.Now(), reason); err != nil {
			s.logger.Error("store session end", "session", s.session, "error", err)
		}
	}
	s.session = ""
}

func (s *feedSink) Spot(sp spot.Spot) {
	if s.store != nil {
		if _, err := s.store.WriteSpot(s.ctx, s.session, time.Now(), sp); err != nil {
			s.logger.Error("store spot", "callsign", sp.Callsign, "error", err)
		}
	}
	if !s.all && !s.tracker.ShouldNotify(sp.Callsign) {
		return
	}
	report := spotReport{Spot: sp}
	if seen, ok := s.tracker.LastSpotted(sp.Callsign); ok {
		report.LastSpotted = &seen
	}
	err := s.out.Stream(s.session, report, func(w io.Writer) {
		writeSpotLine(w, sp)
		if report.LastSpotted != nil {
			fmt.Fprintf(w, "    last spotted %s ago on %.1f\n",
				ago(s.now().Sub(report.LastSpotted.At)), report.LastSpotted.Frequency)
		}
	})
	if err != nil {
		s.logger.Error("write spot", "error", err)
	}
}

// spotReport is a printed spot with the callsign's previous sighting.
type spotReport struct {
	spot.Spot
	LastSpotted *spot.Sighting `json:"last_spotted,omitempty"`
}

// ago renders d in whole seconds below a minute, whole minutes above.
func ago(d time.Duration) string {
	secs := max(int(d/time.Second), 1)
	if secs <= 60 {
		return plural(secs, "second")
	}
	return plural(secs/60, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func (s *feedSink) Reject(re *spot.RejectError) {
	if s.store == nil {
		return
	}
	if err := s.store.WriteRejection(s.ctx, s.session, time.Now(), re); err != nil {
		s.logger.Error("store rejection", "code", re.Code, "error", err)
	}
}

func clusterNames(clusters []rbn.Cluster) []string {
	names := make([]string, len(clusters))
	for i, c := range clusters {
		names[i] = c.Name
	}
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
