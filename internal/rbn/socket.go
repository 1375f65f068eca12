package rbn

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// RecvSize is the most bytes read per READY_TO_READ.
const RecvSize = 4096

// Conn is a non-blocking stream socket.
//
// Recv and Send return (0, nil) when the call would block. Recv returns
// io.EOF when the peer has closed the connection.
type Conn interface {
	Fd() int
	Recv(buf []byte) (int, error)
	Send(b []byte) (int, error)
	Shutdown() error
	Close() error
}

// Dialer starts non-blocking connects.
//
// A nil error means the connect is in progress (or already done) and the
// conn should be registered as a connector. On error the dialer has already
// released any socket it created.
type Dialer interface {
	Dial(c Candidate) (Conn, error)
}

// TCPDialer dials IPv4 stream sockets with raw non-blocking syscalls so the
// descriptor can be polled by the reactor.
type TCPDialer struct{}

// Dial resolves c, creates a non-blocking socket and starts connect.
//
// Name resolution goes through the standard resolver and may block briefly.
func (TCPDialer) Dial(c Candidate) (Conn, error) {
	addr, err := net.ResolveTCPAddr("tcp4", c.Address())
	if err != nil {
		return nil, &DialError{Candidate: c, Op: "resolve", Err: err}
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return nil, &DialError{Candidate: c, Op: "resolve", Err: ErrNoIPv4}
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, &DialError{Candidate: c, Op: "socket", Err: err}
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, &DialError{Candidate: c, Op: "socket", Err: err}
	}

	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], ip4)
	if err := unix.Connect(fd, sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		unix.Close(fd)
		return nil, &DialError{Candidate: c, Op: "connect", Err: err}
	}
	return &tcpConn{fd: fd}, nil
}

type tcpConn struct {
	fd     int
	closed bool
}

func (c *tcpConn) Fd() int { return c.fd }

func (c *tcpConn) Recv(buf []byte) (int, error) {
	n, err := unix.Read(c.fd, buf)
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, nil
	case err != nil:
		return 0, err
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

func (c *tcpConn) Send(b []byte) (int, error) {
	n, err := unix.Write(c.fd, b)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *tcpConn) Shutdown() error {
	err := unix.Shutdown(c.fd, unix.SHUT_RDWR)
	if errors.Is(err, unix.ENOTCONN) {
		return nil
	}
	return err
}

func (c *tcpConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}
