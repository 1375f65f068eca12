package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skimmer/internal/spot"
	"github.com/roach88/skimmer/internal/store"
)

func sampleResult() *Result {
	r := NewResult()
	r.add(TraceEvent{Type: EventTransition, To: "ConnectingToRBN"})
	r.add(TraceEvent{Type: EventAttempt, Cluster: "RBN"})
	r.add(TraceEvent{Type: EventTransition, From: "ConnectingToRBN", To: "WaitingForPrompt"})
	r.add(TraceEvent{Type: EventTransition, From: "WaitingForPrompt", To: "Closing"})
	r.add(TraceEvent{Type: EventSpot, Callsign: "K7MJG", Spotter: "W1AW", Frequency: "14040.0"})
	r.add(TraceEvent{Type: EventSpot, Callsign: "K7MJG", Spotter: "DL8LAS", Frequency: "7025.1"})
	return r
}

func TestResult_SeqAndTransitions(t *testing.T) {
	r := sampleResult()
	assert.Equal(t, int64(1), r.Trace[0].Seq)
	assert.Equal(t, int64(6), r.Trace[5].Seq)
	assert.Equal(t, []string{"ConnectingToRBN", "WaitingForPrompt", "Closing"}, r.Transitions())
}

func TestAssertStateOrder(t *testing.T) {
	r := sampleResult()
	assert.NoError(t, assertStateOrder(r, Assertion{States: []string{"ConnectingToRBN", "Closing"}}))

	err := assertStateOrder(r, Assertion{States: []string{"Closing", "ConnectingToRBN"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertStateOrder, ae.Type)
	assert.Contains(t, err.Error(), "[3] WaitingForPrompt -> Closing")
}

func TestAssertStateCount(t *testing.T) {
	r := sampleResult()
	assert.NoError(t, assertStateCount(r, Assertion{State: "Closing", Count: 1}))
	assert.NoError(t, assertStateCount(r, Assertion{State: "Closed", Count: 0}))
	assert.Error(t, assertStateCount(r, Assertion{State: "Closing", Count: 2}))
}

func TestAssertTraceEvents(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertTraceContains(r, Assertion{Event: EventSpot, Fields: map[string]any{"spotter": "DL8LAS"}}))
	assert.NoError(t, assertTraceContains(r, Assertion{Event: EventAttempt, Fields: map[string]any{"seq": 2}}))
	assert.Error(t, assertTraceContains(r, Assertion{Event: EventSpot, Fields: map[string]any{"callsign": "N1MM"}}))

	assert.NoError(t, assertEventCount(r, Assertion{Event: EventSpot, Fields: map[string]any{"callsign": "K7MJG"}, Count: 2}))
	assert.NoError(t, assertEventCount(r, Assertion{Event: EventReject, Count: 0}))
	err := assertEventCount(r, Assertion{Event: EventSpot, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 events")
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"int vs int64", 40, int64(40), true},
		{"float vs float", 7025.1, 7025.1, true},
		{"int vs float", 7, 7.0, true},
		{"string vs bytes", "W1AW", []byte("W1AW"), true},
		{"string vs string", "W1AW", "K7MJG", false},
		{"number vs string", 40, "40", false},
		{"nil vs nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestAssertFinalState(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	at := time.Date(2015, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, sp := range []spot.Spot{
		{Zulu: "1200Z", Spotter: "W1AW", Frequency: 14040.0, Callsign: "K7MJG", SNR: "20", WPM: 20},
		{Zulu: "1201Z", Spotter: "DL8LAS", Frequency: 7025.1, Callsign: "K7MJG", SNR: "7", WPM: 18},
	} {
		_, err := st.WriteSpot(ctx, "", at, sp)
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{
			name: "match",
			a:    Assertion{Table: "spots", Where: map[string]any{"spotter": "DL8LAS"}, Expect: map[string]any{"frequency": 7025.1, "band": 40, "wpm": 18}},
		},
		{
			name: "ambiguous",
			a:    Assertion{Table: "spots", Where: map[string]any{"callsign": "K7MJG"}, Expect: map[string]any{"band": 20}},
			want: "multiple rows matched",
		},
		{
			name: "no row",
			a:    Assertion{Table: "spots", Where: map[string]any{"callsign": "N1MM"}, Expect: map[string]any{"band": 20}},
			want: "row not found",
		},
		{
			name: "wrong value",
			a:    Assertion{Table: "spots", Where: map[string]any{"spotter": "W1AW"}, Expect: map[string]any{"band": 40}},
			want: "band = 20",
		},
		{
			name: "unknown column",
			a:    Assertion{Table: "spots", Where: map[string]any{"spotter": "W1AW"}, Expect: map[string]any{"mode": "CW"}},
			want: `column "mode"`,
		},
		{
			name: "bad table name",
			a:    Assertion{Table: "spots; DROP TABLE spots", Expect: map[string]any{"band": 20}},
			want: "invalid table name",
		},
		{
			name: "bad column name",
			a:    Assertion{Table: "spots", Where: map[string]any{"1=1 OR spotter": "W1AW"}, Expect: map[string]any{"band": 20}},
			want: "invalid column name",
		},
		{
			name: "missing table",
			a:    Assertion{Table: "queue", Expect: map[string]any{"band": 20}},
			want: "query error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.a)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEvaluateAssertions_FinalStateNeedsStore(t *testing.T) {
	failures := EvaluateAssertions(context.Background(), sampleResult(), []Assertion{
		{Type: AssertStateCount, State: "Closing", Count: 1},
		{Type: AssertFinalState, Table: "spots", Expect: map[string]any{"band": 20}},
	}, nil)

	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "final_state requires a store")
}

func TestSnapshot(t *testing.T) {
	r := NewResult()
	r.add(TraceEvent{Type: EventTransition, To: "ConnectingToRBN"})
	r.add(TraceEvent{Type: EventFailure, Cluster: "RBN", Reason: "timeout"})
	r.FinalState = "ConnectingToRBN"

	data, err := Snapshot("tiny", r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"final_state":"ConnectingToRBN","scenario_name":"tiny","trace":[{"seq":1,"to":"ConnectingToRBN","type":"transition"},{"cluster":"RBN","reason":"timeout","seq":2,"type":"failure"}]}`,
		string(data))
}
