package rbn

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/skimmer/internal/fsm"
	"github.com/roach88/skimmer/internal/reactor"
)

// State is a phase of the client's connection cycle.
type State int

const (
	StateConnecting State = iota + 1
	StatePauseAndReconnect
	StateWaitingForPrompt
	StateSendingCallSign
	StateWaitingForHeader
	StateConnected
	StateClosing
	StateClosed
)

var stateNames = map[State]string{
	StateConnecting:        "ConnectingToRBN",
	StatePauseAndReconnect: "PauseAndReconnect",
	StateWaitingForPrompt:  "WaitingForPrompt",
	StateSendingCallSign:   "SendingCallSign",
	StateWaitingForHeader:  "WaitingForHeader",
	StateConnected:         "ConnectedToRBN",
	StateClosing:           "Closing",
	StateClosed:            "Closed",
}

// String returns the state name used in logs and traces.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Reactor is the part of reactor.Reactor the client uses.
type Reactor interface {
	AddReader(s reactor.Socket, sub reactor.Subscriber) error
	RemoveReader(s reactor.Socket) bool
	AddWriter(s reactor.Socket, sub reactor.Subscriber) error
	RemoveWriter(s reactor.Socket) bool
	AddConnector(s reactor.Socket, sub reactor.Subscriber) error
	RemoveConnector(s reactor.Socket) bool
}

// Timeouts bounds every phase of the connection cycle.
type Timeouts struct {
	Connect      time.Duration
	Pause        time.Duration
	Prompt       time.Duration
	Header       time.Duration
	Inactivity   time.Duration
	NetworkRetry time.Duration
}

// DefaultTimeouts returns the timeouts used against the public RBN servers.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:      250 * time.Millisecond,
		Pause:        1500 * time.Millisecond,
		Prompt:       15 * time.Second,
		Header:       750 * time.Millisecond,
		Inactivity:   60 * time.Second,
		NetworkRetry: time.Second,
	}
}

// PayloadFunc receives raw feed bytes in the connected state. The slice is
// owned by the callee.
type PayloadFunc func(data []byte)

// SessionIDGenerator names feed sessions.
// Implemented by UUIDv7Generator (production) and
// testutil.FixedSessionGenerator (tests).
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string. Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Metrics receives connection-cycle counters. See package metrics.
type Metrics interface {
	ConnectAttempt(cluster string)
	ConnectFailure(cluster, reason string)
	SessionStarted(cluster string)
	BytesReceived(n int)
	StateEntered(state string)
}

type nopMetrics struct{}

func (nopMetrics) ConnectAttempt(string)         {}
func (nopMetrics) ConnectFailure(string, string) {}
func (nopMetrics) SessionStarted(string)         {}
func (nopMetrics) BytesReceived(int)             {}
func (nopMetrics) StateEntered(string)           {}

// Option configures a Client.
type Option func(*Client)

// WithPayload sets the steady-state data handler. Default: discard.
func WithPayload(fn PayloadFunc) Option {
	return func(c *Client) { c.payload = fn }
}

// WithTimeouts overrides DefaultTimeouts.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) { c.timeouts = t }
}

// WithRand sets the source used to shuffle servers within a cluster.
func WithRand(r *rand.Rand) Option {
	return func(c *Client) { c.rng = r }
}

// WithDialer replaces TCPDialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithClock sets the machine's time source.
func WithClock(clock fsm.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDebug logs every state exit and enter.
func WithDebug(debug bool) Option {
	return func(c *Client) { c.debug = debug }
}

// WithSessionIDs sets the session id generator. Default: UUIDv7Generator.
func WithSessionIDs(g SessionIDGenerator) Option {
	return func(c *Client) { c.ids = g }
}

// WithOnSession is called each time the header has been read and the feed
// starts.
func WithOnSession(fn func(SessionInfo)) Option {
	return func(c *Client) { c.onSession = fn }
}

// WithOnClosed is called when the client reaches Closed.
func WithOnClosed(fn func()) Option {
	return func(c *Client) { c.onClosed = fn }
}

// WithMetrics reports connection-cycle counters to m.
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client is an RBN feed client driven by a reactor.
type Client struct {
	machine  *fsm.Machine[State]
	reactor  Reactor
	callsign string
	clusters []Cluster

	timeouts  Timeouts
	dialer    Dialer
	rng       *rand.Rand
	clock     fsm.Clock
	logger    *slog.Logger
	debug     bool
	ids       SessionIDGenerator
	metrics   Metrics
	payload   PayloadFunc
	onSession func(SessionInfo)
	onClosed  func()
	observer  func(from, to State)

	sess session
	buf  []byte
}

// New builds a client and registers its machine with scheduler. The first
// scheduler tick enters ConnectingToRBN.
func New(r Reactor, scheduler *fsm.Scheduler, callsign string, clusters []Cluster, opts ...Option) (*Client, error) {
	if callsign == "" {
		return nil, ErrNoCallsign
	}
	if len(clusters) == 0 {
		return nil, ErrNoClusters
	}

	c := &Client{
		reactor:  r,
		callsign: callsign,
		clusters: append([]Cluster(nil), clusters...),
		timeouts: DefaultTimeouts(),
		dialer:   TCPDialer{},
		clock:    fsm.SystemClock{},
		ids:      UUIDv7Generator{},
		metrics:  nopMetrics{},
		payload:  func([]byte) {},
		buf:      make([]byte, RecvSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	m, err := fsm.New(c.states(), StateConnecting,
		fsm.WithName("rbn"),
		fsm.WithClock(c.clock),
		fsm.WithLogger(c.logger),
		fsm.WithDebug(c.debug),
		fsm.WithScheduler(scheduler),
	)
	if err != nil {
		return nil, fmt.Errorf("build rbn client: %w", err)
	}
	m.OnTransition(c.transitioned)
	c.machine = m
	return c, nil
}

// OnTransition installs an observer called for every state change.
func (c *Client) OnTransition(fn func(from, to State)) {
	c.observer = fn
}

// State returns the current phase. Zero until the first tick.
func (c *Client) State() State {
	return c.machine.State()
}

// Session returns the active feed session. ok is false outside
// ConnectedToRBN.
func (c *Client) Session() (SessionInfo, bool) {
	if c.sess.id == "" {
		return SessionInfo{}, false
	}
	return c.info(), true
}

// Deadline exposes the pending phase timeout.
func (c *Client) Deadline() (time.Time, bool) {
	return c.machine.Deadline()
}

// Close takes the client off the scheduler and the reactor and releases
// its socket. The machine stays in whatever state it was in.
func (c *Client) Close() {
	c.machine.Remove()
	if conn := c.sess.conn; conn != nil {
		c.reactor.RemoveReader(conn)
		c.reactor.RemoveWriter(conn)
		c.reactor.RemoveConnector(conn)
	}
	c.closeConn(false)
}

func (c *Client) transitioned(from, to State) {
	c.metrics.StateEntered(to.String())
	if c.observer != nil {
		c.observer(from, to)
	}
}

func (c *Client) info() SessionInfo {
	return SessionInfo{
		ID:        c.sess.id,
		Cluster:   c.sess.cluster,
		Candidate: c.sess.target,
		Started:   c.sess.started,
	}
}

// closeConn releases the socket. Registrations must already be gone.
func (c *Client) closeConn(shutdown bool) {
	conn := c.sess.conn
	if conn == nil {
		return
	}
	c.sess.conn = nil
	if shutdown {
		if err := conn.Shutdown(); err != nil {
			c.logger.Debug("shutdown failed", "cluster", c.sess.cluster, "host", c.sess.target.Host, "error", err)
		}
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug("close failed", "cluster", c.sess.cluster, "host", c.sess.target.Host, "error", err)
	}
}

// register adds the current socket to the reactor in the given role.
// Errors mean a handler left a stale registration behind.
func (c *Client) register(add func(reactor.Socket, reactor.Subscriber) error, role string) {
	if err := add(c.sess.conn, c.machine); err != nil {
		c.logger.Error("register socket", "role", role, "state", c.machine.State(), "error", err)
	}
}

// receive reads once into the inbound buffer. false means the session is
// gone (error or orderly close by the peer).
func (c *Client) receive() bool {
	n, err := c.sess.conn.Recv(c.buf)
	if err != nil {
		c.logger.Debug("receive failed", "cluster", c.sess.cluster, "host", c.sess.target.Host, "error", err)
		return false
	}
	c.metrics.BytesReceived(n)
	c.sess.in = append(c.sess.in, c.buf[:n]...)
	return true
}

func (c *Client) deliver() {
	if len(c.sess.in) == 0 {
		return
	}
	data := c.sess.in
	c.sess.in = nil
	c.payload(data)
}
