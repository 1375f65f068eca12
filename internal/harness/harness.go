package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/roach88/skimmer/internal/fsm"
	"github.com/roach88/skimmer/internal/rbn"
	"github.com/roach88/skimmer/internal/reactor"
	"github.com/roach88/skimmer/internal/spot"
	"github.com/roach88/skimmer/internal/store"
	"github.com/roach88/skimmer/internal/testutil"
)

const (
	// DefaultCallsign is used when a scenario names none.
	DefaultCallsign = "K7MJG"
	// DefaultLimit bounds a run when the scenario sets no limit.
	DefaultLimit = 5 * time.Second

	pollInterval = 5 * time.Millisecond
)

// Harness records one scenario run. It is the client's metrics hook and
// the pipeline's sink, so everything observable ends up in the trace.
type Harness struct {
	ctx     context.Context
	store   *store.Store
	result  *Result
	logger  *slog.Logger
	until   string
	needed  int
	reached bool
	session string
}

// Run executes a scenario against the real reactor, client and pipeline.
//
// Each run gets an in-memory store, a fixed random seed and predictable
// session ids, so the trace of a scenario is the same on every run.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with a caller-supplied logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	servers := make([]*scriptedServer, 0, len(scenario.Servers))
	defer func() {
		cancel()
		for _, srv := range servers {
			srv.close()
		}
	}()
	clusters := make([]rbn.Cluster, 0, len(scenario.Servers))
	for _, spec := range scenario.Servers {
		srv, err := startServer(ctx, spec)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
		clusters = append(clusters, rbn.Cluster{Name: srv.cluster, Candidates: []rbn.Candidate{srv.addr}})
	}

	h := &Harness{
		ctx:    ctx,
		store:  st,
		result: NewResult(),
		logger: logger,
		until:  scenario.Until,
		needed: max(scenario.Occurrence, 1),
	}

	callsign := scenario.Callsign
	if callsign == "" {
		callsign = DefaultCallsign
	}

	sched := fsm.NewScheduler()
	r := reactor.New(sched, reactor.WithPollInterval(pollInterval), reactor.WithLogger(logger))
	pipeline := spot.NewPipeline(h, spot.WithLogger(logger))

	client, err := rbn.New(r, sched, callsign, clusters,
		rbn.WithPayload(pipeline.Feed),
		rbn.WithTimeouts(scenario.Timeouts.apply(rbn.DefaultTimeouts())),
		rbn.WithRand(rand.New(rand.NewSource(1))),
		rbn.WithLogger(logger),
		rbn.WithSessionIDs(testutil.NewFixedSessionGenerator("harness-session")),
		rbn.WithMetrics(h),
		rbn.WithOnSession(func(info rbn.SessionInfo) {
			pipeline.Reset()
			h.startSession(info)
		}),
		rbn.WithOnClosed(func() { h.result.add(TraceEvent{Type: EventClosed}) }),
	)
	if err != nil {
		return nil, err
	}
	client.OnTransition(h.transition)

	limit := scenario.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	deadline := time.Now().Add(limit)
	for !h.reached {
		if time.Now().After(deadline) {
			h.result.AddError(fmt.Sprintf("timed out after %s waiting for %s", limit, scenario.Until))
			break
		}
		if err := r.RunOne(); err != nil {
			client.Close()
			return nil, fmt.Errorf("reactor: %w", err)
		}
	}
	h.result.FinalState = client.State().String()
	client.Close()

	cancel()
	for _, srv := range servers {
		for _, err := range srv.close() {
			h.result.AddError("server " + err.Error())
		}
	}
	servers = nil

	for _, msg := range EvaluateAssertions(context.Background(), h.result, scenario.Assertions, st) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) transition(from, to rbn.State) {
	ev := TraceEvent{Type: EventTransition, To: to.String()}
	if from != 0 {
		ev.From = from.String()
	}
	h.result.add(ev)

	if from == rbn.StateConnected && h.session != "" {
		if err := h.store.EndSession(h.ctx, h.session, time.Now(), to.String()); err != nil {
			h.logger.Warn("end session", "session", h.session, "error", err)
		}
		h.session = ""
	}

	if to.String() == h.until {
		h.needed--
		if h.needed == 0 {
			h.reached = true
		}
	}
}

func (h *Harness) startSession(info rbn.SessionInfo) {
	h.session = info.ID
	h.result.add(TraceEvent{Type: EventSession, Cluster: info.Cluster, Session: info.ID})
	err := h.store.WriteSession(h.ctx, store.Session{
		ID:      info.ID,
		Cluster: info.Cluster,
		Host:    info.Candidate.Host,
		Port:    info.Candidate.Port,
		Started: info.Started,
	})
	if err != nil {
		h.logger.Warn("write session", "session", info.ID, "error", err)
	}
}

// Spot implements spot.Sink.
func (h *Harness) Spot(s spot.Spot) {
	h.result.add(TraceEvent{
		Type:      EventSpot,
		Session:   h.session,
		Spotter:   s.Spotter,
		Frequency: strconv.FormatFloat(s.Frequency, 'f', 1, 64),
		Callsign:  s.Callsign,
	})
	if _, err := h.store.WriteSpot(h.ctx, h.session, time.Now(), s); err != nil {
		h.logger.Warn("write spot", "error", err)
	}
}

// Reject implements spot.Sink.
func (h *Harness) Reject(err *spot.RejectError) {
	h.result.add(TraceEvent{Type: EventReject, Session: h.session, Code: string(err.Code)})
	if werr := h.store.WriteRejection(h.ctx, h.session, time.Now(), err); werr != nil {
		h.logger.Warn("write rejection", "error", werr)
	}
}

// ConnectAttempt implements rbn.Metrics.
func (h *Harness) ConnectAttempt(cluster string) {
	h.result.add(TraceEvent{Type: EventAttempt, Cluster: cluster})
}

// ConnectFailure implements rbn.Metrics.
func (h *Harness) ConnectFailure(cluster, reason string) {
	h.result.add(TraceEvent{Type: EventFailure, Cluster: cluster, Reason: reason})
}

func (h *Harness) SessionStarted(string) {}
func (h *Harness) BytesReceived(int)     {}
func (h *Harness) StateEntered(string)   {}
