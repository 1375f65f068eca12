package rbn

import "time"

// session is the mutable context of one connection cycle: the candidate
// walk, the socket and its buffers. Handlers read and write it; nothing
// else does.
type session struct {
	attempts []attempt
	cursor   int
	cluster  string
	target   Candidate
	retrying bool

	conn Conn
	in   []byte
	out  []byte

	id      string
	started time.Time
}

// next advances the candidate cursor. ok is false once the list is spent.
func (s *session) next() (attempt, bool) {
	if s.cursor >= len(s.attempts) {
		return attempt{}, false
	}
	a := s.attempts[s.cursor]
	s.cursor++
	s.cluster = a.cluster
	s.target = a.candidate
	return a, true
}

// discardThrough drops inbound bytes before end, keeping whatever followed
// a matched marker.
func (s *session) discardThrough(end int) {
	s.in = append(s.in[:0], s.in[end:]...)
}

// clearBuffers empties both directions and forgets the session id.
func (s *session) clearBuffers() {
	s.in = nil
	s.out = nil
	s.id = ""
	s.started = time.Time{}
}

// SessionInfo describes an established feed session.
type SessionInfo struct {
	ID        string
	Cluster   string
	Candidate Candidate
	Started   time.Time
}
