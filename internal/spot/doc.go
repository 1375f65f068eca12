// Package spot decodes RBN telnet spot lines.
//
// Parse validates one fixed-width 75 character line and returns a Spot.
// Lines that are well formed but of no interest (non-CW modes, beacons)
// come back as a *DiscardError; lines that break the format come back as a
// *RejectError carrying the offending text. The distinction matters to the
// caller: discards are dropped silently, rejects are logged and kept.
//
// Splitter turns the raw byte stream into lines, and Pipeline chains the
// splitter, the parser, an optional band filter and the caller's Sink.
package spot
