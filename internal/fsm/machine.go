package fsm

import (
	"fmt"
	"log/slog"
	"time"
)

// Event names a stimulus delivered to the current state.
type Event string

// Reserved events with transition-bound semantics.
const (
	Enter   Event = "ENTER"
	Exit    Event = "EXIT"
	Timeout Event = "TIMEOUT"
)

// Handler reacts to one event. arg is nil unless the event was sent with
// SendEventArg.
type Handler func(arg any)

// Handlers is the handler set of a single state, keyed by event.
type Handlers map[Event]Handler

// States is a complete dispatch table: every state the machine can enter,
// including states with no handlers at all.
type States[S comparable] map[S]Handlers

// Option configures a Machine.
type Option func(*options)

type options struct {
	name      string
	clock     Clock
	logger    *slog.Logger
	debug     bool
	scheduler *Scheduler
}

// WithName sets the name used in log lines and errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClock overrides the time source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used for debug output. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDebug logs every exit and enter at debug level.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithScheduler registers the machine with s at construction.
// The registration lasts until Remove is called.
func WithScheduler(s *Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// Machine is a single-threaded state machine over the state type S.
type Machine[S comparable] struct {
	name    string
	states  States[S]
	initial S

	current  S
	active   bool
	handlers Handlers

	deadline time.Time
	armed    bool

	clock     Clock
	logger    *slog.Logger
	debug     bool
	scheduler *Scheduler
	observer  func(from, to S)
}

// New builds a machine that enters initial on its first Tick.
//
// The states table is copied; later changes to the caller's map have no
// effect. Returns an *UnknownStateError if initial is not declared.
func New[S comparable](states States[S], initial S, opts ...Option) (*Machine[S], error) {
	o := options{clock: SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	table := make(States[S], len(states))
	for s, h := range states {
		table[s] = h
	}
	if _, ok := table[initial]; !ok {
		return nil, &UnknownStateError{Machine: o.name, State: fmt.Sprint(initial)}
	}

	m := &Machine[S]{
		name:      o.name,
		states:    table,
		initial:   initial,
		clock:     o.clock,
		logger:    o.logger,
		debug:     o.debug,
		scheduler: o.scheduler,
	}
	if m.scheduler != nil {
		m.scheduler.Add(m)
	}
	return m, nil
}

// OnTransition installs an observer called after Exit and before Enter of
// every transition. On the first transition from is the zero value of S.
func (m *Machine[S]) OnTransition(fn func(from, to S)) {
	m.observer = fn
}

// State returns the current state. Meaningless until Active reports true.
func (m *Machine[S]) State() S {
	return m.current
}

// Active reports whether the initial transition has happened.
func (m *Machine[S]) Active() bool {
	return m.active
}

// Deadline returns the pending timeout deadline, if any.
func (m *Machine[S]) Deadline() (time.Time, bool) {
	return m.deadline, m.armed
}

// Transition leaves the current state (firing Exit), clears any pending
// deadline, and enters to (firing Enter).
//
// Panics with *UnknownStateError if to is not in the dispatch table.
func (m *Machine[S]) Transition(to S) {
	handlers, ok := m.states[to]
	if !ok {
		panic(&UnknownStateError{Machine: m.name, State: fmt.Sprint(to)})
	}

	from := m.current
	if m.active {
		if m.debug {
			m.logger.Debug("<<< state exit", "machine", m.name, "state", from)
		}
		m.fire(Exit, nil)
	}

	m.armed = false
	m.deadline = time.Time{}
	m.current = to
	m.handlers = handlers
	m.active = true

	if m.observer != nil {
		m.observer(from, to)
	}
	if m.debug {
		m.logger.Debug(">>> state enter", "machine", m.name, "state", to)
	}
	m.fire(Enter, nil)
}

// SendEvent delivers ev to the current state. Missing handlers are a no-op.
func (m *Machine[S]) SendEvent(ev Event) {
	m.fire(ev, nil)
}

// SendEventArg delivers ev with an argument to the current state.
func (m *Machine[S]) SendEventArg(ev Event, arg any) {
	m.fire(ev, arg)
}

// TimeoutIn arms the deadline d from now, replacing any earlier deadline.
func (m *Machine[S]) TimeoutIn(d time.Duration) {
	m.deadline = m.clock.Now().Add(d)
	m.armed = true
}

// TimeoutInSeconds is TimeoutIn with a fractional number of seconds.
func (m *Machine[S]) TimeoutInSeconds(seconds float64) {
	m.TimeoutIn(time.Duration(seconds * float64(time.Second)))
}

// Tick advances the machine by one scheduler step: the first call enters
// the initial state, later calls fire Timeout while the deadline is overdue.
func (m *Machine[S]) Tick() {
	if !m.active {
		m.Transition(m.initial)
		return
	}
	if m.armed && !m.clock.Now().Before(m.deadline) {
		m.fire(Timeout, nil)
	}
}

// Remove deregisters the machine from its scheduler. Safe to call twice.
func (m *Machine[S]) Remove() {
	if m.scheduler != nil {
		m.scheduler.Remove(m)
	}
}

func (m *Machine[S]) fire(ev Event, arg any) {
	if m.handlers == nil {
		return
	}
	if h := m.handlers[ev]; h != nil {
		h(arg)
	}
}
