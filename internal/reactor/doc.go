// Package reactor multiplexes socket readiness for cooperative clients.
//
// A Reactor owns one registration per socket. The registration carries the
// socket's role (reader, writer or pending connector) and the subscriber
// that receives readiness events. Because a socket has exactly one record,
// it can never be registered for two roles at once.
//
// Each RunOne iteration:
//
//  1. ticks the scheduler, so timeouts progress even without readiness;
//  2. sleeps the poll interval and returns if nothing is registered;
//  3. polls every registered socket with the poll interval as timeout;
//  4. sends READY_TO_READ to every readable reader;
//  5. sends READY_TO_WRITE to every writable writer, and CONNECTED,
//     REFUSED or CONNECT_FAILED to every writable connector according to
//     its SO_ERROR.
//
// Within a phase subscribers are notified in registration order.
// Registrations are re-checked just before each dispatch, so a handler that
// drops or re-roles a socket earlier in the same iteration is honoured.
//
// Subscribers add and remove only their own sockets, and everything runs on
// the goroutine that calls RunOne, so the reactor needs no locking.
package reactor
