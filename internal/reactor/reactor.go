package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/roach88/skimmer/internal/fsm"
)

// Readiness events sent to subscribers.
const (
	ReadyToRead   fsm.Event = "READY_TO_READ"
	ReadyToWrite  fsm.Event = "READY_TO_WRITE"
	Connected     fsm.Event = "CONNECTED"
	Refused       fsm.Event = "REFUSED"
	ConnectFailed fsm.Event = "CONNECT_FAILED"
)

// DefaultPollInterval bounds each poll and is the idle sleep when nothing
// is registered.
const DefaultPollInterval = 100 * time.Millisecond

const (
	readableMask = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
	writableMask = unix.POLLOUT | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
)

// Poller waits for readiness on a set of descriptors.
type Poller interface {
	Poll(fds []unix.PollFd, timeout time.Duration) (int, error)
}

// UnixPoller is the poll(2) based Poller.
type UnixPoller struct{}

// Poll calls unix.Poll with the timeout rounded up to whole milliseconds.
func (UnixPoller) Poll(fds []unix.PollFd, timeout time.Duration) (int, error) {
	ms := int(timeout / time.Millisecond)
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	return unix.Poll(fds, ms)
}

// SocketError reads the pending error of a socket (SO_ERROR).
func SocketError(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithPollInterval sets the poll timeout and idle sleep.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reactor) { r.interval = d }
}

// WithPoller replaces the poll(2) implementation.
func WithPoller(p Poller) Option {
	return func(r *Reactor) { r.poller = p }
}

// WithSleep replaces time.Sleep for the idle case.
func WithSleep(sleep func(time.Duration)) Option {
	return func(r *Reactor) { r.sleep = sleep }
}

// WithSocketError replaces the SO_ERROR lookup used for connectors.
func WithSocketError(fn func(fd int) (int, error)) Option {
	return func(r *Reactor) { r.sockErr = fn }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reactor) { r.logger = l }
}

// WithDebug logs interest sets and readiness at debug level.
func WithDebug(debug bool) Option {
	return func(r *Reactor) { r.debug = debug }
}

// Reactor is a single-threaded readiness multiplexer.
type Reactor struct {
	scheduler *fsm.Scheduler
	regs      map[Socket]*registration
	order     []Socket

	interval time.Duration
	poller   Poller
	sleep    func(time.Duration)
	sockErr  func(fd int) (int, error)
	logger   *slog.Logger
	debug    bool

	// scratch space reused across iterations
	pollfds []unix.PollFd
	polled  []*registration
}

// New creates a reactor that ticks scheduler at the start of every
// iteration. A nil scheduler gets a fresh one.
func New(scheduler *fsm.Scheduler, opts ...Option) *Reactor {
	if scheduler == nil {
		scheduler = fsm.NewScheduler()
	}
	r := &Reactor{
		scheduler: scheduler,
		regs:      make(map[Socket]*registration),
		interval:  DefaultPollInterval,
		poller:    UnixPoller{},
		sleep:     time.Sleep,
		sockErr:   SocketError,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Scheduler returns the scheduler ticked by this reactor.
func (r *Reactor) Scheduler() *fsm.Scheduler {
	return r.scheduler
}

// PollInterval returns the configured poll interval.
func (r *Reactor) PollInterval() time.Duration {
	return r.interval
}

// RunOne performs one iteration: tick, poll, dispatch.
//
// Returns an error only if poll itself fails with something other than
// EINTR.
func (r *Reactor) RunOne() error {
	r.scheduler.TickAll()

	r.pollfds = r.pollfds[:0]
	r.polled = r.polled[:0]
	for _, s := range r.order {
		reg := r.regs[s]
		events := int16(unix.POLLOUT)
		if reg.role == RoleReader {
			events = unix.POLLIN
		}
		r.pollfds = append(r.pollfds, unix.PollFd{Fd: int32(s.Fd()), Events: events})
		r.polled = append(r.polled, reg)
	}

	if len(r.pollfds) == 0 {
		r.sleep(r.interval)
		return nil
	}

	if r.debug {
		for _, reg := range r.polled {
			r.logger.Debug("waiting", "fd", reg.sock.Fd(), "role", reg.role)
		}
	}

	n, err := r.poller.Poll(r.pollfds, r.interval)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("poll %d sockets: %w", len(r.pollfds), err)
	}
	if n == 0 {
		return nil
	}

	for i, pfd := range r.pollfds {
		reg := r.polled[i]
		if reg.role != RoleReader || pfd.Revents&readableMask == 0 || !r.live(reg) {
			continue
		}
		if r.debug {
			r.logger.Debug("read ready", "fd", pfd.Fd)
		}
		reg.sub.SendEvent(ReadyToRead)
	}

	for i, pfd := range r.pollfds {
		reg := r.polled[i]
		if reg.role == RoleReader || pfd.Revents&writableMask == 0 || !r.live(reg) {
			continue
		}
		if r.debug {
			r.logger.Debug("write ready", "fd", pfd.Fd, "role", reg.role)
		}
		switch reg.role {
		case RoleWriter:
			reg.sub.SendEvent(ReadyToWrite)
		case RoleConnector:
			r.finishConnect(reg)
		}
	}

	return nil
}

// live reports whether reg is still the registration of its socket.
func (r *Reactor) live(reg *registration) bool {
	return r.regs[reg.sock] == reg
}

func (r *Reactor) finishConnect(reg *registration) {
	code, err := r.sockErr(reg.sock.Fd())
	if err != nil {
		r.logger.Warn("SO_ERROR lookup failed", "fd", reg.sock.Fd(), "error", err)
		reg.sub.SendEventArg(ConnectFailed, err)
		return
	}

	switch errno := syscall.Errno(code); errno {
	case 0:
		reg.sub.SendEvent(Connected)
	case unix.ECONNREFUSED:
		reg.sub.SendEvent(Refused)
	default:
		reg.sub.SendEventArg(ConnectFailed, errno)
	}
}

// RunCount runs n iterations, stopping at the first error.
func (r *Reactor) RunCount(n int) error {
	for i := 0; i < n; i++ {
		if err := r.RunOne(); err != nil {
			return err
		}
	}
	return nil
}

// Run iterates until ctx is cancelled or poll fails.
func (r *Reactor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.RunOne(); err != nil {
			return err
		}
	}
}
