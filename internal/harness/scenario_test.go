package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skimmer/internal/rbn"
)

const minimalScenario = `
name: minimal
description: "smallest valid scenario"
servers:
  - cluster: LAB
    refuse: true
until: PauseAndReconnect
assertions:
  - type: state_count
    state: ConnectedToRBN
    count: 0
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, "PauseAndReconnect", scenario.Until)
	require.Len(t, scenario.Servers, 1)
	assert.True(t, scenario.Servers[0].Refuse)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_RepoScenarios(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/reconnect.yaml")
	require.NoError(t, err)

	assert.Equal(t, 2, scenario.Occurrence)
	assert.Equal(t, 200*time.Millisecond, scenario.Timeouts.Inactivity)
	require.Len(t, scenario.Servers[0].Sessions, 2)
	second := scenario.Servers[0].Sessions[1]
	require.NotNil(t, second[3].Spot)
	assert.Equal(t, "N1MM", second[3].Spot.Callsign)
	assert.True(t, second[4].Hold)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: minimalScenario + "asertions: []\n",
			want: "field asertions not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nservers: [{cluster: LAB}]\nuntil: Closed\nassertions: [{type: state_count, state: Closed}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nservers: [{cluster: LAB}]\nuntil: Closed\nassertions: [{type: state_count, state: Closed}]\n",
			want: "description is required",
		},
		{
			name: "no servers",
			yaml: "name: n\ndescription: d\nuntil: Closed\nassertions: [{type: state_count, state: Closed}]\n",
			want: "servers list is required",
		},
		{
			name: "unknown until",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB}]\nuntil: Done\nassertions: [{type: state_count, state: Closed}]\n",
			want: `unknown state "Done"`,
		},
		{
			name: "no assertions",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB}]\nuntil: Closed\n",
			want: "assertions list is required",
		},
		{
			name: "duplicate cluster",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB}, {cluster: LAB}]\nuntil: Closed\nassertions: [{type: state_count, state: Closed}]\n",
			want: `duplicate cluster "LAB"`,
		},
		{
			name: "refusing server with sessions",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB, refuse: true, sessions: [[{hold: true}]]}]\nuntil: Closed\nassertions: [{type: state_count, state: Closed}]\n",
			want: "a refusing server has no sessions",
		},
		{
			name: "step with two actions",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB, sessions: [[{send: x, hold: true}]]}]\nuntil: Closed\nassertions: [{type: state_count, state: Closed}]\n",
			want: "exactly one action required, got 2",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB}]\nuntil: Closed\nassertions: [{type: trace_order}]\n",
			want: `unknown assertion type "trace_order"`,
		},
		{
			name: "final_state without expect",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB}]\nuntil: Closed\nassertions: [{type: final_state, table: spots}]\n",
			want: "expect is required for final_state",
		},
		{
			name: "event_count without event",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB}]\nuntil: Closed\nassertions: [{type: event_count, count: 1}]\n",
			want: "event is required for event_count",
		},
		{
			name: "state_order with unknown state",
			yaml: "name: n\ndescription: d\nservers: [{cluster: LAB}]\nuntil: Closed\nassertions: [{type: state_order, states: [Connected]}]\n",
			want: `unknown state "Connected"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTimeoutOverrides_Apply(t *testing.T) {
	got := TimeoutOverrides{Pause: 50 * time.Millisecond, Inactivity: time.Second}.apply(rbn.DefaultTimeouts())

	want := rbn.DefaultTimeouts()
	want.Pause = 50 * time.Millisecond
	want.Inactivity = time.Second
	assert.Equal(t, want, got)
}

func TestSpotStep_Line(t *testing.T) {
	line := SpotStep{Callsign: "N1MM", Zulu: "0001Z"}.Line()

	assert.Len(t, line, 77)
	assert.Equal(t, "N1MM", line[26:30])
	assert.Equal(t, "0001Z\r\n", line[70:])
	assert.Equal(t, "W1AW-#:", line[6:13], "unset fields keep the default")
}
