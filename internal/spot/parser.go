package spot

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// LineLength is the fixed width of a spot line without its terminator.
const LineLength = 75

const (
	linePrefix  = "DX de "
	spotterMark = "-#:"
	modeCW      = "CW"
	kindBeacon  = "BEACON"
)

var (
	zuluPattern = regexp.MustCompile(`^([01][0-9]|2[0-3])[0-5][0-9]Z$`)
	snrPattern  = regexp.MustCompile(`^\s?\d{1,2} dB$`)
)

// Parse decodes one spot line.
//
// Column layout (0-based, half open):
//
//	[6:24]  spotter "-#:" frequency
//	[26:35] callsign
//	[41:47] mode
//	[47:52] "NN dB"
//	[53:56] WPM
//	[62:68] kind (CQ, BEACON, ...)
//	[70:75] time HHMMZ
//
// Checks run in a fixed order so a line with several faults always gets
// the same RejectCode. Mode and kind are checked before the numeric fields:
// a non-CW or beacon line is discarded even if its other fields are bad.
func Parse(line string) (Spot, error) {
	if len(line) != LineLength {
		return Spot{}, &RejectError{Code: RejectLength, Line: line}
	}
	if !strings.HasPrefix(line, linePrefix) {
		return Spot{}, &RejectError{Code: RejectPrefix, Line: line}
	}

	spotter, freqText, ok := strings.Cut(line[6:24], spotterMark)
	if !ok || spotter == "" {
		return Spot{}, &RejectError{Code: RejectSpotter, Line: line}
	}

	callsign := strings.TrimRight(line[26:35], " ")
	mode := strings.TrimRight(line[41:47], " ")
	kind := strings.TrimRight(line[62:68], " ")
	zulu := line[70:75]

	if mode != modeCW {
		return Spot{}, &DiscardError{Reason: DiscardNotCW}
	}
	if kind == kindBeacon {
		return Spot{}, &DiscardError{Reason: DiscardBeacon}
	}

	if !zuluPattern.MatchString(zulu) {
		return Spot{}, &RejectError{Code: RejectTime, Line: line}
	}
	if !snrPattern.MatchString(line[47:52]) {
		return Spot{}, &RejectError{Code: RejectSNR, Line: line}
	}

	wpm, err := strconv.Atoi(strings.TrimSpace(line[53:56]))
	if err != nil || wpm < 0 {
		return Spot{}, &RejectError{Code: RejectSpeed, Line: line}
	}

	freq, err := strconv.ParseFloat(strings.TrimSpace(freqText), 64)
	if err != nil || math.IsInf(freq, 0) || math.IsNaN(freq) {
		return Spot{}, &RejectError{Code: RejectFrequency, Line: line}
	}

	if i := strings.IndexByte(callsign, '/'); i >= 0 {
		callsign = callsign[:i]
	}
	if strings.TrimSpace(callsign) == "" {
		return Spot{}, &RejectError{Code: RejectCallsign, Line: line}
	}

	return Spot{
		Zulu:      zulu,
		Spotter:   spotter,
		Frequency: freq,
		Callsign:  callsign,
		SNR:       strings.TrimSpace(line[47:49]),
		WPM:       wpm,
	}, nil
}
