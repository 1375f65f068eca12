package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/skimmer/internal/rbn"
)

// stepTimeout bounds each blocking server step.
const stepTimeout = 2 * time.Second

// scriptedServer plays Scripts to successive connections on a loopback
// port.
type scriptedServer struct {
	cluster string
	addr    rbn.Candidate
	ln      net.Listener

	mu     sync.Mutex
	errors []error
	wg     sync.WaitGroup
}

// startServer listens on a loopback port, or for a refusing server
// reserves one and closes it again.
func startServer(ctx context.Context, spec Server) (*scriptedServer, error) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for %s: %w", spec.Cluster, err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	s := &scriptedServer{cluster: spec.Cluster, addr: rbn.Candidate{Host: host, Port: port}}
	if spec.Refuse {
		ln.Close()
		return s, nil
	}
	s.ln = ln

	s.wg.Add(1)
	go s.serve(ctx, spec.Sessions)
	return s, nil
}

func (s *scriptedServer) serve(ctx context.Context, sessions []Script) {
	defer s.wg.Done()
	for i, script := range sessions {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				s.fail(fmt.Errorf("%s session %d: accept: %w", s.cluster, i+1, err))
			}
			return
		}
		if err := s.play(ctx, conn, script); err != nil {
			s.fail(fmt.Errorf("%s session %d: %w", s.cluster, i+1, err))
		}
		conn.Close()
	}
}

func (s *scriptedServer) play(ctx context.Context, conn net.Conn, script Script) error {
	var pending []byte
	buf := make([]byte, 1024)
	for i, step := range script {
		switch {
		case step.Send != "":
			if _, err := io.WriteString(conn, step.Send); err != nil {
				return fmt.Errorf("step %d send: %w", i, err)
			}
		case step.Spot != nil:
			if _, err := io.WriteString(conn, step.Spot.Line()); err != nil {
				return fmt.Errorf("step %d spot: %w", i, err)
			}
		case step.Expect != "":
			want := []byte(step.Expect)
			_ = conn.SetReadDeadline(time.Now().Add(stepTimeout))
			for !bytes.Contains(pending, want) {
				n, err := conn.Read(buf)
				pending = append(pending, buf[:n]...)
				if err != nil {
					return fmt.Errorf("step %d expect %q, got %q: %w", i, step.Expect, pending, err)
				}
			}
			idx := bytes.Index(pending, want)
			pending = pending[idx+len(want):]
		case step.Wait > 0:
			select {
			case <-time.After(step.Wait):
			case <-ctx.Done():
				return nil
			}
		case step.Hold:
			<-ctx.Done()
			return nil
		}
	}
	return nil
}

func (s *scriptedServer) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

// close stops accepting and waits for the script goroutine.
func (s *scriptedServer) close() []error {
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}
