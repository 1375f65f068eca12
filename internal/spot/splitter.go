package spot

import "bytes"

var crlf = []byte("\r\n")

// MaxPending caps the partial line a Splitter buffers. No valid line comes
// close to it.
const MaxPending = 4 * LineLength

// Splitter cuts a byte stream into CRLF terminated lines.
//
// When a partial line grows past MaxPending, its first MaxPending bytes are
// emitted as a line of their own (which the parser rejects for its length)
// and the rest is skipped up to the next CRLF.
type Splitter struct {
	buf      []byte
	skipping bool
}

// Feed appends data and returns every line completed by it, without
// terminators. A trailing partial line is kept for the next call.
func (s *Splitter) Feed(data []byte) []string {
	s.buf = append(s.buf, data...)

	var lines []string
	for {
		i := bytes.Index(s.buf, crlf)
		if s.skipping {
			if i < 0 {
				s.dropTail()
				break
			}
			s.buf = s.buf[i+len(crlf):]
			s.skipping = false
			continue
		}
		if i < 0 {
			if len(s.buf) > MaxPending {
				lines = append(lines, string(s.buf[:MaxPending]))
				s.buf = s.buf[MaxPending:]
				s.skipping = true
				continue
			}
			break
		}
		lines = append(lines, string(s.buf[:i]))
		s.buf = s.buf[i+len(crlf):]
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return lines
}

// dropTail discards skipped bytes, keeping a final CR that may start the
// terminator.
func (s *Splitter) dropTail() {
	if n := len(s.buf); n > 0 && s.buf[n-1] == '\r' {
		s.buf = append(s.buf[:0], '\r')
		return
	}
	s.buf = nil
}

// Pending returns the number of buffered bytes of the incomplete line.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// Reset drops any partial line.
func (s *Splitter) Reset() {
	s.buf = nil
	s.skipping = false
}
