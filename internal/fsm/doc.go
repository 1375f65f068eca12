// Package fsm implements the cooperative state machine engine that drives
// every protocol client in skimmer.
//
// A Machine holds exactly one active state, an optional pending deadline and
// a dispatch table fixed at construction:
//
//	var m *fsm.Machine[State]
//	states := fsm.States[State]{
//		StateIdle: {
//			fsm.Enter:   func(any) { m.TimeoutIn(time.Second) },
//			fsm.Timeout: func(any) { m.Transition(StateBusy) },
//		},
//		StateBusy: {},
//	}
//
// # Event Semantics
//
//   - Enter fires when a state becomes active, Exit when it is left.
//     Transitioning to the current state still fires both.
//   - Every Transition clears the pending deadline after Exit has run.
//   - Timeout fires on each Tick while the deadline is overdue. It is NOT
//     cleared by firing: the handler must rearm or transition away.
//   - Events without a handler in the current state are ignored.
//
// # Scheduling
//
// Machines do nothing on their own. A Scheduler ticks every registered
// machine once per reactor iteration; the first Tick enters the initial
// state. All of this happens on one goroutine, so neither Machine nor
// Scheduler is safe for concurrent use.
package fsm
