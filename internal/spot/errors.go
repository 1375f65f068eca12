package spot

import (
	"errors"
	"fmt"
)

// RejectCode categorizes malformed lines.
type RejectCode string

const (
	// RejectLength: the line is not exactly 75 characters.
	RejectLength RejectCode = "BAD_LENGTH"

	// RejectPrefix: the line does not start with "DX de ".
	RejectPrefix RejectCode = "BAD_PREFIX"

	// RejectSpotter: the spotter field lacks the "-#:" marker.
	RejectSpotter RejectCode = "BAD_SPOTTER"

	// RejectTime: the time field is not HHMMZ.
	RejectTime RejectCode = "BAD_TIME"

	// RejectSNR: the signal field is not "NN dB".
	RejectSNR RejectCode = "BAD_SNR"

	// RejectSpeed: the WPM field is not a non-negative integer.
	RejectSpeed RejectCode = "BAD_SPEED"

	// RejectFrequency: the frequency is not a finite number.
	RejectFrequency RejectCode = "BAD_FREQUENCY"

	// RejectCallsign: nothing is left of the callsign.
	RejectCallsign RejectCode = "BAD_CALLSIGN"
)

// RejectError reports a malformed line. Line is the input as received.
type RejectError struct {
	Code RejectCode
	Line string
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %q", e.Code, e.Line)
}

// DiscardReason says why a valid line was dropped.
type DiscardReason string

const (
	DiscardNotCW  DiscardReason = "NOT_CW"
	DiscardBeacon DiscardReason = "BEACON"
)

// DiscardError reports a valid line the parser is not interested in.
type DiscardError struct {
	Reason DiscardReason
}

// Error implements the error interface.
func (e *DiscardError) Error() string {
	return "discarded: " + string(e.Reason)
}

// IsReject returns true if err is, or wraps, a RejectError.
func IsReject(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// IsDiscard returns true if err is, or wraps, a DiscardError.
func IsDiscard(err error) bool {
	var de *DiscardError
	return errors.As(err, &de)
}

// AsReject extracts the RejectError from err.
func AsReject(err error) (*RejectError, bool) {
	var re *RejectError
	ok := errors.As(err, &re)
	return re, ok
}
