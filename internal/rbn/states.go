package rbn

import (
	"bytes"
	"errors"

	"github.com/roach88/skimmer/internal/fsm"
	"github.com/roach88/skimmer/internal/reactor"
)

var (
	// telnetEscape is the option negotiation some relays send instead of a
	// prompt.
	telnetEscape = []byte{0xff, 0xfc, 0x22}
	loginPrompt  = []byte("call: ")

	headerMarkers = [][]byte{
		[]byte(">\r\n\r\n"),
		[]byte("Welcome to RBN's bulk spots telnet server.\r\n"),
	}
)

func (c *Client) states() fsm.States[State] {
	return fsm.States[State]{
		StateConnecting: {
			fsm.Enter:             func(any) { c.startConnecting() },
			reactor.Connected:     func(any) { c.connected() },
			reactor.Refused:       func(any) { c.abandon("refused", nil) },
			reactor.ConnectFailed: func(arg any) { c.abandon("failed", arg) },
			fsm.Timeout:           func(any) { c.connectTimeout() },
		},
		StatePauseAndReconnect: {
			fsm.Enter: func(any) {
				c.closeConn(true)
				c.sess.clearBuffers()
				c.machine.TimeoutIn(c.timeouts.Pause)
			},
			fsm.Timeout: func(any) { c.machine.Transition(StateConnecting) },
		},
		StateWaitingForPrompt: {
			fsm.Enter: func(any) {
				c.register(c.reactor.AddReader, "reader")
				c.machine.TimeoutIn(c.timeouts.Prompt)
			},
			fsm.Exit:           func(any) { c.reactor.RemoveReader(c.sess.conn) },
			reactor.ReadyToRead: func(any) { c.readPrompt() },
			fsm.Timeout: func(any) {
				c.logger.Warn("timed out waiting for login prompt", "cluster", c.sess.cluster, "host", c.sess.target.Host)
				c.machine.Transition(StateClosing)
			},
		},
		StateSendingCallSign: {
			fsm.Enter: func(any) {
				c.sess.out = append(c.sess.out, c.callsign+"\r\n"...)
				c.register(c.reactor.AddWriter, "writer")
			},
			fsm.Exit:            func(any) { c.reactor.RemoveWriter(c.sess.conn) },
			reactor.ReadyToWrite: func(any) { c.sendCallsign() },
		},
		StateWaitingForHeader: {
			fsm.Enter: func(any) {
				c.register(c.reactor.AddReader, "reader")
				c.machine.TimeoutIn(c.timeouts.Header)
			},
			fsm.Exit:           func(any) { c.reactor.RemoveReader(c.sess.conn) },
			reactor.ReadyToRead: func(any) { c.readHeader() },
			fsm.Timeout: func(any) {
				c.logger.Warn("timed out waiting for header", "cluster", c.sess.cluster, "host", c.sess.target.Host)
				c.machine.Transition(StateClosing)
			},
		},
		StateConnected: {
			fsm.Enter:           func(any) { c.startSession() },
			fsm.Exit:            func(any) { c.reactor.RemoveReader(c.sess.conn) },
			reactor.ReadyToRead: func(any) { c.readFeed() },
			fsm.Timeout: func(any) {
				c.logger.Warn("no activity, reconnecting",
					"cluster", c.sess.cluster, "session", c.sess.id, "idle", c.timeouts.Inactivity)
				c.machine.Transition(StatePauseAndReconnect)
			},
		},
		StateClosing: {
			fsm.Enter: func(any) {
				c.closeConn(true)
				c.machine.Transition(StateClosed)
			},
		},
		StateClosed: {
			fsm.Enter: func(any) {
				c.logger.Info("rbn client closed", "cluster", c.sess.cluster)
				if c.onClosed != nil {
					c.onClosed()
				}
			},
		},
	}
}

func (c *Client) startConnecting() {
	c.sess.attempts = attemptOrder(c.clusters, c.rng)
	c.sess.cursor = 0
	c.sess.retrying = false
	c.initiate()
}

// initiate moves to the next candidate, or pauses once every candidate
// has been tried.
func (c *Client) initiate() {
	if _, ok := c.sess.next(); !ok {
		c.logger.Warn("failed to connect to any server", "attempts", len(c.sess.attempts))
		c.machine.Transition(StatePauseAndReconnect)
		return
	}
	c.dial()
}

// dial starts a connect to the current candidate.
func (c *Client) dial() {
	c.metrics.ConnectAttempt(c.sess.cluster)
	conn, err := c.dialer.Dial(c.sess.target)
	if err != nil {
		if IsNetworkUnavailable(err) {
			c.logger.Warn("no apparent network connection, retrying",
				"cluster", c.sess.cluster, "host", c.sess.target.Host, "error", err)
			c.sess.retrying = true
			c.machine.TimeoutIn(c.timeouts.NetworkRetry)
			return
		}
		reason := "failed"
		var de *DialError
		switch {
		case IsRefused(err):
			reason = "refused"
		case errors.As(err, &de) && de.Op == "resolve":
			reason = "unresolved"
		}
		c.metrics.ConnectFailure(c.sess.cluster, reason)
		c.logger.Debug("connect failed", "cluster", c.sess.cluster, "host", c.sess.target.Host, "error", err)
		c.initiate()
		return
	}
	c.sess.conn = conn
	c.register(c.reactor.AddConnector, "connector")
	c.machine.TimeoutIn(c.timeouts.Connect)
}

func (c *Client) connectTimeout() {
	if c.sess.retrying {
		c.sess.retrying = false
		c.dial()
		return
	}
	c.abandon("timeout", nil)
}

// abandon gives up on the pending connect and tries the next candidate.
func (c *Client) abandon(reason string, arg any) {
	attrs := []any{"cluster", c.sess.cluster, "host", c.sess.target.Host, "port", c.sess.target.Port, "reason", reason}
	if err, ok := arg.(error); ok {
		attrs = append(attrs, "error", err)
	}
	c.logger.Debug("connect attempt abandoned", attrs...)
	c.metrics.ConnectFailure(c.sess.cluster, reason)

	if c.sess.conn != nil {
		c.reactor.RemoveConnector(c.sess.conn)
		c.closeConn(false)
	}
	c.initiate()
}

func (c *Client) connected() {
	c.reactor.RemoveConnector(c.sess.conn)
	c.logger.Info("connected", "cluster", c.sess.cluster, "host", c.sess.target.Host, "port", c.sess.target.Port)
	c.machine.Transition(StateWaitingForPrompt)
}

func (c *Client) readPrompt() {
	if !c.receive() {
		c.machine.Transition(StateClosing)
		return
	}
	if bytes.HasPrefix(c.sess.in, telnetEscape) {
		c.sess.discardThrough(len(telnetEscape))
		c.machine.Transition(StateSendingCallSign)
		return
	}
	if i := bytes.Index(c.sess.in, loginPrompt); i >= 0 {
		c.sess.discardThrough(i + len(loginPrompt))
		c.machine.Transition(StateSendingCallSign)
	}
}

func (c *Client) sendCallsign() {
	n, err := c.sess.conn.Send(c.sess.out)
	if err != nil {
		c.logger.Warn("send callsign failed", "cluster", c.sess.cluster, "host", c.sess.target.Host, "error", err)
		c.machine.Transition(StateClosing)
		return
	}
	c.sess.out = c.sess.out[n:]
	if len(c.sess.out) == 0 {
		c.sess.out = nil
		c.machine.Transition(StateWaitingForHeader)
	}
}

func (c *Client) readHeader() {
	if !c.receive() {
		c.machine.Transition(StateClosing)
		return
	}
	for _, marker := range headerMarkers {
		if i := bytes.Index(c.sess.in, marker); i >= 0 {
			c.sess.discardThrough(i + len(marker))
			c.machine.Transition(StateConnected)
			return
		}
	}
}

func (c *Client) startSession() {
	c.sess.id = c.ids.Generate()
	c.sess.started = c.clock.Now()
	c.metrics.SessionStarted(c.sess.cluster)
	c.logger.Info("receiving spots", "cluster", c.sess.cluster, "host", c.sess.target.Host, "session", c.sess.id)
	if c.onSession != nil {
		c.onSession(c.info())
	}

	c.register(c.reactor.AddReader, "reader")
	c.machine.TimeoutIn(c.timeouts.Inactivity)
	c.deliver()
}

func (c *Client) readFeed() {
	c.machine.TimeoutIn(c.timeouts.Inactivity)
	if !c.receive() {
		c.logger.Warn("lost connection, reconnecting", "cluster", c.sess.cluster, "session", c.sess.id)
		c.machine.Transition(StatePauseAndReconnect)
		return
	}
	c.deliver()
}
