package spot

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/skimmer/internal/fsm"
)

// Outcomes of a line passing through a Pipeline.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDiscarded = "discarded"
	OutcomeRejected  = "rejected"
	OutcomeFiltered  = "filtered"
)

// Sink receives accepted spots and rejected lines. Spot is called before
// the tracker records the spot, so LastSpotted still returns the previous
// sighting.
type Sink interface {
	Spot(s Spot)
	Reject(err *RejectError)
}

// Metrics counts pipeline outcomes. detail is the reject code or discard
// reason, empty otherwise.
type Metrics interface {
	SpotOutcome(outcome, detail string)
}

// Stats are running totals since the pipeline was created.
type Stats struct {
	Lines     int `json:"lines"`
	Accepted  int `json:"accepted"`
	Discarded int `json:"discarded"`
	Rejected  int `json:"rejected"`
	Filtered  int `json:"filtered"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBands drops accepted spots outside the selected bands.
func WithBands(b Bands) Option {
	return func(p *Pipeline) { p.bands = b }
}

// WithTracker records every accepted spot in t.
func WithTracker(t *Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithLogger sets the logger for rejected lines. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock sets the time source for the reject log limiter.
func WithClock(c fsm.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithMetrics reports every outcome to m.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRejectLogRate limits reject warnings to r per second with the given
// burst. Rejects beyond the limit still reach the sink.
func WithRejectLogRate(r rate.Limit, burst int) Option {
	return func(p *Pipeline) { p.limiter = rate.NewLimiter(r, burst) }
}

// Pipeline splits raw feed data into lines, parses them and forwards the
// results. It is driven from the reactor goroutine and is not safe for
// concurrent use.
type Pipeline struct {
	splitter Splitter
	sink     Sink
	bands    Bands
	tracker  *Tracker
	logger   *slog.Logger
	clock    fsm.Clock
	limiter  *rate.Limiter
	metrics  Metrics

	stats      Stats
	suppressed int
}

// NewPipeline creates a pipeline feeding sink. A nil sink discards results.
func NewPipeline(sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		sink:    sink,
		clock:   fsm.SystemClock{},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Feed consumes raw bytes from the feed. Its signature matches
// rbn.PayloadFunc.
func (p *Pipeline) Feed(data []byte) {
	for _, line := range p.splitter.Feed(data) {
		p.HandleLine(line)
	}
}

// HandleLine runs one line through parser, filter and sink and returns
// the outcome.
func (p *Pipeline) HandleLine(line string) string {
	p.stats.Lines++

	s, err := Parse(line)
	if err != nil {
		if re, ok := AsReject(err); ok {
			p.stats.Rejected++
			p.logReject(re)
			if p.sink != nil {
				p.sink.Reject(re)
			}
			p.count(OutcomeRejected, string(re.Code))
			return OutcomeRejected
		}
		p.stats.Discarded++
		reason := ""
		if de, ok := err.(*DiscardError); ok {
			reason = string(de.Reason)
		}
		p.count(OutcomeDiscarded, reason)
		return OutcomeDiscarded
	}

	if !p.bands.Contains(s.Frequency) {
		p.stats.Filtered++
		p.count(OutcomeFiltered, "")
		return OutcomeFiltered
	}

	p.stats.Accepted++
	// The sink sees the previous sighting before this one replaces it.
	if p.sink != nil {
		p.sink.Spot(s)
	}
	if p.tracker != nil {
		p.tracker.Observe(s)
	}
	p.count(OutcomeAccepted, "")
	return OutcomeAccepted
}

// Reset drops any partial line, e.g. when a new session starts.
func (p *Pipeline) Reset() {
	if n := p.splitter.Pending(); n > 0 {
		p.logger.Debug("dropping partial line", "bytes", n)
	}
	p.splitter.Reset()
}

// Pending returns the size of the buffered partial line.
func (p *Pipeline) Pending() int {
	return p.splitter.Pending()
}

// Stats returns the running totals.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

func (p *Pipeline) count(outcome, detail string) {
	if p.metrics != nil {
		p.metrics.SpotOutcome(outcome, detail)
	}
}

func (p *Pipeline) logReject(re *RejectError) {
	if !p.limiter.AllowN(p.clock.Now(), 1) {
		p.suppressed++
		return
	}
	attrs := []any{"code", re.Code, "line", re.Line}
	if p.suppressed > 0 {
		attrs = append(attrs, "suppressed", p.suppressed)
		p.suppressed = 0
	}
	p.logger.Warn("rejected spot line", attrs...)
}
