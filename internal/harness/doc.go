// Package harness runs end-to-end scenarios against the RBN client.
//
// A scenario starts scripted servers on loopback ports, points a real
// client at them through a real reactor and spot pipeline, and records
// what happens: state transitions, connect attempts and failures,
// sessions, accepted spots and rejected lines. Spots and rejections are
// also written to an in-memory store.
//
// # Scenario Format
//
//	name: handshake_and_feed
//	description: "Client logs in and receives spots"
//	timeouts:
//	  pause: 50ms
//	servers:
//	  - cluster: DEAD
//	    refuse: true
//	  - cluster: LAB
//	    sessions:
//	      - - send: "Please enter your call: "
//	        - expect: "K7MJG\r\n"
//	        - send: ">\r\n\r\n"
//	        - spot: { callsign: W1AW }
//	until: PauseAndReconnect
//	assertions:
//	  - type: state_order
//	    states: [WaitingForPrompt, ConnectedToRBN, PauseAndReconnect]
//	  - type: final_state
//	    table: spots
//	    where: { callsign: W1AW }
//	    expect: { spotter: W1AW }
//
// Each server becomes a one-candidate cluster, tried in the order listed.
// The run ends when the client enters the until state (the Nth time with
// occurrence) or after limit.
//
// # Assertion Types
//
//   - state_order: states were entered in this order, not necessarily
//     consecutively
//   - state_count: a state was entered exactly count times
//   - trace_contains: some event of type event has the given fields
//   - event_count: exactly count events of type event have the fields
//   - final_state: one store row matches where and has the expect values
//
// # Determinism
//
// Candidates are shuffled with a fixed seed and session ids come from
// testutil.FixedSessionGenerator, so traces are stable across runs and can
// be compared with golden files.
package harness
