package rbn

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrNoClusters is returned when a client is built with no clusters.
var ErrNoClusters = errors.New("no clusters selected")

// ErrNoIPv4 is returned when a candidate host resolves to IPv6 addresses
// only.
var ErrNoIPv4 = errors.New("no IPv4 address")

// ErrNoCallsign is returned when a client is built with an empty callsign.
var ErrNoCallsign = errors.New("callsign required")

// UnknownClusterError reports a cluster name missing from the catalog.
type UnknownClusterError struct {
	Name  string
	Known []string
}

// Error implements the error interface.
func (e *UnknownClusterError) Error() string {
	return fmt.Sprintf("unknown cluster %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// IsUnknownCluster returns true if err is, or wraps, an UnknownClusterError.
func IsUnknownCluster(err error) bool {
	var uce *UnknownClusterError
	return errors.As(err, &uce)
}

// DialError wraps a failure to start a connection to one candidate.
type DialError struct {
	Candidate Candidate
	Op        string
	Err       error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Candidate.Address(), e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	return e.Err
}

// IsRefused reports whether err is an immediate connection refusal.
func IsRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}

// IsNetworkUnavailable reports whether err means the local host has no usable
// network: the socket could not be created, the network is down or
// unreachable, or the resolver failed temporarily. Such errors are retried on
// the same candidate instead of moving on. A name that does not exist or has
// no IPv4 address is a failure of that candidate only.
func IsNetworkUnavailable(err error) bool {
	var de *DialError
	if errors.As(err, &de) && de.Op == "socket" {
		return true
	}
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return !dns.IsNotFound && (dns.IsTemporary || dns.IsTimeout)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.ENETUNREACH, unix.ENETDOWN:
			return true
		}
	}
	return false
}
