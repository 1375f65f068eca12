package rbn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/skimmer/internal/fsm"
	"github.com/roach88/skimmer/internal/reactor"
	"github.com/roach88/skimmer/internal/testutil"
)

type fakeConn struct {
	fd        int
	inbound   [][]byte
	recvErr   error
	sendLimit int
	sendErr   error
	sent      []byte
	shutdown  bool
	closed    bool
}

func (c *fakeConn) Fd() int { return c.fd }

func (c *fakeConn) Recv(buf []byte) (int, error) {
	if len(c.inbound) == 0 {
		if c.recvErr != nil {
			return 0, c.recvErr
		}
		return 0, nil
	}
	n := copy(buf, c.inbound[0])
	c.inbound[0] = c.inbound[0][n:]
	if len(c.inbound[0]) == 0 {
		c.inbound = c.inbound[1:]
	}
	return n, nil
}

func (c *fakeConn) Send(b []byte) (int, error) {
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	n := len(b)
	if c.sendLimit > 0 && n > c.sendLimit {
		n = c.sendLimit
	}
	c.sent = append(c.sent, b[:n]...)
	return n, nil
}

func (c *fakeConn) Shutdown() error { c.shutdown = true; return nil }
func (c *fakeConn) Close() error    { c.closed = true; return nil }

func (c *fakeConn) push(s string) { c.inbound = append(c.inbound, []byte(s)) }

// fakeDialer hands out fakeConns. errs[i], when set, fails the i-th dial.
type fakeDialer struct {
	errs   map[int]error
	dialed []Candidate
	conns  []*fakeConn
	nextFd int
}

func (d *fakeDialer) Dial(c Candidate) (Conn, error) {
	n := len(d.dialed)
	d.dialed = append(d.dialed, c)
	if err := d.errs[n]; err != nil {
		return nil, err
	}
	d.nextFd++
	conn := &fakeConn{fd: 100 + d.nextFd}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) last() *fakeConn {
	return d.conns[len(d.conns)-1]
}

type fakeEntry struct {
	role reactor.Role
	sub  reactor.Subscriber
}

// fakeReactor records registrations and lets tests deliver readiness.
type fakeReactor struct {
	regs map[reactor.Socket]fakeEntry
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{regs: make(map[reactor.Socket]fakeEntry)}
}

func (r *fakeReactor) add(s reactor.Socket, sub reactor.Subscriber, role reactor.Role) error {
	if _, ok := r.regs[s]; ok {
		return reactor.ErrAlreadyRegistered
	}
	r.regs[s] = fakeEntry{role: role, sub: sub}
	return nil
}

func (r *fakeReactor) remove(s reactor.Socket, role reactor.Role) bool {
	e, ok := r.regs[s]
	if !ok || e.role != role {
		return false
	}
	delete(r.regs, s)
	return true
}

func (r *fakeReactor) AddReader(s reactor.Socket, sub reactor.Subscriber) error {
	return r.add(s, sub, reactor.RoleReader)
}
func (r *fakeReactor) RemoveReader(s reactor.Socket) bool { return r.remove(s, reactor.RoleReader) }
func (r *fakeReactor) AddWriter(s reactor.Socket, sub reactor.Subscriber) error {
	return r.add(s, sub, reactor.RoleWriter)
}
func (r *fakeReactor) RemoveWriter(s reactor.Socket) bool { return r.remove(s, reactor.RoleWriter) }
func (r *fakeReactor) AddConnector(s reactor.Socket, sub reactor.Subscriber) error {
	return r.add(s, sub, reactor.RoleConnector)
}
func (r *fakeReactor) RemoveConnector(s reactor.Socket) bool {
	return r.remove(s, reactor.RoleConnector)
}

func (r *fakeReactor) role(s reactor.Socket) reactor.Role {
	return r.regs[s].role
}

// fire delivers ev to whoever holds s, failing the test if nobody does.
func (r *fakeReactor) fire(t *testing.T, s reactor.Socket, ev fsm.Event, arg any) {
	t.Helper()
	e, ok := r.regs[s]
	require.True(t, ok, "socket %d not registered for %s", s.Fd(), ev)
	e.sub.SendEventArg(ev, arg)
}

type recordingMetrics struct {
	attempts map[string]int
	failures map[string]int
	sessions int
	bytes    int
	entered  []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{attempts: map[string]int{}, failures: map[string]int{}}
}

func (m *recordingMetrics) ConnectAttempt(cluster string) { m.attempts[cluster]++ }
func (m *recordingMetrics) ConnectFailure(cluster, reason string) {
	m.failures[cluster+"/"+reason]++
}
func (m *recordingMetrics) SessionStarted(string)     { m.sessions++ }
func (m *recordingMetrics) BytesReceived(n int)       { m.bytes += n }
func (m *recordingMetrics) StateEntered(state string) { m.entered = append(m.entered, state) }

// rig wires a client to fakes and a manual clock.
type rig struct {
	sched    *fsm.Scheduler
	reactor  *fakeReactor
	dialer   *fakeDialer
	clock    *testutil.ManualClock
	metrics  *recordingMetrics
	client   *Client
	trace    []string
	payloads []string
	sessions []SessionInfo
	closed   int
}

func newRig(t *testing.T, clusters []Cluster, opts ...Option) *rig {
	t.Helper()
	r := &rig{
		sched:   fsm.NewScheduler(),
		reactor: newFakeReactor(),
		dialer:  &fakeDialer{errs: map[int]error{}},
		clock:   testutil.NewManualClock(),
		metrics: newRecordingMetrics(),
	}
	base := []Option{
		WithDialer(r.dialer),
		WithClock(r.clock),
		WithRand(rand.New(rand.NewSource(1))),
		WithSessionIDs(testutil.NewFixedSessionGenerator("")),
		WithMetrics(r.metrics),
		WithPayload(func(b []byte) { r.payloads = append(r.payloads, string(b)) }),
		WithOnSession(func(s SessionInfo) { r.sessions = append(r.sessions, s) }),
		WithOnClosed(func() { r.closed++ }),
	}
	c, err := New(r.reactor, r.sched, "K7MJG", clusters, append(base, opts...)...)
	require.NoError(t, err)
	c.OnTransition(func(from, to State) { r.trace = append(r.trace, from.String()+"->"+to.String()) })
	r.client = c
	return r
}

func (r *rig) tick() { r.sched.TickAll() }

// connect drives the rig from construction to WaitingForPrompt.
func (r *rig) connect(t *testing.T) *fakeConn {
	t.Helper()
	r.tick()
	conn := r.dialer.last()
	r.reactor.fire(t, conn, reactor.Connected, nil)
	require.Equal(t, StateWaitingForPrompt, r.client.State())
	return conn
}

// handshake drives the rig all the way to ConnectedToRBN.
func (r *rig) handshake(t *testing.T) *fakeConn {
	t.Helper()
	conn := r.connect(t)
	conn.push("Please enter your call: ")
	r.reactor.fire(t, conn, reactor.ReadyToRead, nil)
	r.reactor.fire(t, conn, reactor.ReadyToWrite, nil)
	conn.push("\r\nHello K7MJG, this is RBN\r\n\r\nK7MJG de RELAY >\r\n\r\n")
	r.reactor.fire(t, conn, reactor.ReadyToRead, nil)
	require.Equal(t, StateConnected, r.client.State())
	return conn
}

func singleCluster() []Cluster {
	return []Cluster{{Name: "RBN", Candidates: []Candidate{{Host: "telnet.example", Port: 7000}}}}
}
