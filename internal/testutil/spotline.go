package testutil

import (
	"fmt"
	"strings"
)

// SpotLine describes one RBN telnet line field by field.
//
// String lays the fields out on the fixed 75-column grid the feed uses,
// so tests can vary one field without hand-counting spaces.
type SpotLine struct {
	Spotter   string
	Frequency string
	Callsign  string
	Mode      string
	SNR       int
	WPM       int
	Kind      string
	Zulu      string
}

// DefaultSpotLine returns a well-formed CW spot of K7MJG by W1AW.
func DefaultSpotLine() SpotLine {
	return SpotLine{
		Spotter:   "W1AW",
		Frequency: "14040.0",
		Callsign:  "K7MJG",
		Mode:      "CW",
		SNR:       20,
		WPM:       20,
		Kind:      "CQ",
		Zulu:      "1234Z",
	}
}

// String renders the line without a terminator.
func (l SpotLine) String() string {
	head := l.Spotter + "-#:"
	pad := 18 - len(head) - len(l.Frequency)
	if pad < 1 {
		pad = 1
	}

	var b strings.Builder
	b.WriteString("DX de ")
	b.WriteString(head)
	b.WriteString(strings.Repeat(" ", pad))
	b.WriteString(l.Frequency)
	b.WriteString("  ")
	fmt.Fprintf(&b, "%-9s", l.Callsign)
	b.WriteString("      ")
	fmt.Fprintf(&b, "%-6s", l.Mode)
	fmt.Fprintf(&b, "%2d dB", l.SNR)
	b.WriteString(" ")
	fmt.Fprintf(&b, "%3d", l.WPM)
	b.WriteString(" WPM  ")
	fmt.Fprintf(&b, "%-6s", l.Kind)
	b.WriteString("  ")
	b.WriteString(l.Zulu)
	return b.String()
}

// Wire renders the line with the CRLF terminator.
func (l SpotLine) Wire() string {
	return l.String() + "\r\n"
}
