// Package rbn implements a client for the Reverse Beacon Network telnet
// spot feed on top of the fsm and reactor packages.
//
// The client walks an ordered list of clusters, each a pool of equivalent
// servers. Servers inside a cluster are tried in random order; clusters are
// tried in the order given. A session proceeds through the phases
//
//	ConnectingToRBN -> WaitingForPrompt -> SendingCallSign
//	  -> WaitingForHeader -> ConnectedToRBN
//
// and every phase is bounded by a timeout. Once connected, raw bytes are
// handed to the PayloadFunc exactly as received; splitting them into lines
// is the caller's job (see package spot).
//
// Failures never stop the client. A lost session or a silent feed leads to
// PauseAndReconnect, and an exhausted candidate list pauses and starts over.
// Only a handshake failure (Closing) leaves the machine in Closed, where the
// OnClosed hook lets the owner decide what to do next.
//
// All work happens in reactor callbacks on a single goroutine. The client
// is not safe for concurrent use.
package rbn
