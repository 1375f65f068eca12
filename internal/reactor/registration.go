package reactor

import (
	"errors"
	"fmt"

	"github.com/roach88/skimmer/internal/fsm"
)

// Socket is anything with a pollable file descriptor.
type Socket interface {
	Fd() int
}

// Subscriber receives readiness events. *fsm.Machine[S] satisfies it.
type Subscriber interface {
	SendEvent(ev fsm.Event)
	SendEventArg(ev fsm.Event, arg any)
}

// Role is the kind of interest a socket is registered for.
type Role int

const (
	// RoleReader waits for inbound data or hang-up.
	RoleReader Role = iota + 1
	// RoleWriter waits for send buffer space.
	RoleWriter
	// RoleConnector waits for a non-blocking connect to finish.
	RoleConnector
)

// String returns the role name used in logs.
func (r Role) String() string {
	switch r {
	case RoleReader:
		return "reader"
	case RoleWriter:
		return "writer"
	case RoleConnector:
		return "connector"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ErrAlreadyRegistered is returned when a socket that already has a
// registration is added again, in any role.
var ErrAlreadyRegistered = errors.New("socket already registered")

type registration struct {
	sock Socket
	role Role
	sub  Subscriber
}

func (r *Reactor) add(s Socket, sub Subscriber, role Role) error {
	if existing, ok := r.regs[s]; ok {
		return fmt.Errorf("add %s fd %d: %w as %s", role, s.Fd(), ErrAlreadyRegistered, existing.role)
	}
	r.regs[s] = &registration{sock: s, role: role, sub: sub}
	r.order = append(r.order, s)
	return nil
}

func (r *Reactor) remove(s Socket, role Role) bool {
	reg, ok := r.regs[s]
	if !ok || reg.role != role {
		return false
	}
	delete(r.regs, s)
	for i, cur := range r.order {
		if cur == s {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// AddReader registers s for read readiness.
func (r *Reactor) AddReader(s Socket, sub Subscriber) error {
	return r.add(s, sub, RoleReader)
}

// RemoveReader drops the reader registration of s. Returns false if s was
// not registered as a reader.
func (r *Reactor) RemoveReader(s Socket) bool {
	return r.remove(s, RoleReader)
}

// AddWriter registers s for write readiness.
func (r *Reactor) AddWriter(s Socket, sub Subscriber) error {
	return r.add(s, sub, RoleWriter)
}

// RemoveWriter drops the writer registration of s.
func (r *Reactor) RemoveWriter(s Socket) bool {
	return r.remove(s, RoleWriter)
}

// AddConnector registers s as a pending non-blocking connect.
func (r *Reactor) AddConnector(s Socket, sub Subscriber) error {
	return r.add(s, sub, RoleConnector)
}

// RemoveConnector drops the connector registration of s.
func (r *Reactor) RemoveConnector(s Socket) bool {
	return r.remove(s, RoleConnector)
}

// Role reports how s is registered, if at all.
func (r *Reactor) Role(s Socket) (Role, bool) {
	reg, ok := r.regs[s]
	if !ok {
		return 0, false
	}
	return reg.role, true
}

// Len returns the number of registered sockets.
func (r *Reactor) Len() int {
	return len(r.order)
}
