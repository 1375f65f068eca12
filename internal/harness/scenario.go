package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/skimmer/internal/rbn"
	"github.com/roach88/skimmer/internal/testutil"
)

// Scenario drives the real client against scripted loopback servers.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Callsign is sent at the login prompt. Default: K7MJG.
	Callsign string `yaml:"callsign,omitempty"`

	// Timeouts override the client defaults. Scenarios shorten them so
	// runs finish quickly.
	Timeouts TimeoutOverrides `yaml:"timeouts,omitempty"`

	// Servers are started in order; each becomes a one-candidate cluster
	// and the client tries the clusters in the same order.
	Servers []Server `yaml:"servers"`

	// Until is the client state that ends the run.
	Until string `yaml:"until"`

	// Occurrence stops the run at the Nth entry of Until. Default 1.
	Occurrence int `yaml:"occurrence,omitempty"`

	// Limit bounds the wall-clock time of the run. Default 5s.
	Limit time.Duration `yaml:"limit,omitempty"`

	// Assertions are evaluated against the trace and the store.
	Assertions []Assertion `yaml:"assertions"`
}

// TimeoutOverrides mirrors rbn.Timeouts; zero fields keep the default.
type TimeoutOverrides struct {
	Connect      time.Duration `yaml:"connect,omitempty"`
	Pause        time.Duration `yaml:"pause,omitempty"`
	Prompt       time.Duration `yaml:"prompt,omitempty"`
	Header       time.Duration `yaml:"header,omitempty"`
	Inactivity   time.Duration `yaml:"inactivity,omitempty"`
	NetworkRetry time.Duration `yaml:"network_retry,omitempty"`
}

func (o TimeoutOverrides) apply(t rbn.Timeouts) rbn.Timeouts {
	pick := func(override, def time.Duration) time.Duration {
		if override > 0 {
			return override
		}
		return def
	}
	return rbn.Timeouts{
		Connect:      pick(o.Connect, t.Connect),
		Pause:        pick(o.Pause, t.Pause),
		Prompt:       pick(o.Prompt, t.Prompt),
		Header:       pick(o.Header, t.Header),
		Inactivity:   pick(o.Inactivity, t.Inactivity),
		NetworkRetry: pick(o.NetworkRetry, t.NetworkRetry),
	}
}

// Server is one scripted relay.
type Server struct {
	// Cluster names the cluster the server stands for.
	Cluster string `yaml:"cluster"`

	// Refuse leaves the port closed so connects are refused.
	Refuse bool `yaml:"refuse,omitempty"`

	// Sessions are played to successive accepted connections.
	Sessions []Script `yaml:"sessions,omitempty"`
}

// Script is the server side of one connection.
type Script []Step

// Step is one server action. Exactly one field is set.
type Step struct {
	// Send writes raw text.
	Send string `yaml:"send,omitempty"`

	// Spot writes one feed line built from the fields given; unset
	// fields come from testutil.DefaultSpotLine.
	Spot *SpotStep `yaml:"spot,omitempty"`

	// Expect reads until the text has arrived.
	Expect string `yaml:"expect,omitempty"`

	// Wait pauses the script.
	Wait time.Duration `yaml:"wait,omitempty"`

	// Hold keeps the connection open until the run ends.
	Hold bool `yaml:"hold,omitempty"`
}

// SpotStep overrides fields of the default spot line.
type SpotStep struct {
	Spotter   string `yaml:"spotter,omitempty"`
	Frequency string `yaml:"frequency,omitempty"`
	Callsign  string `yaml:"callsign,omitempty"`
	Mode      string `yaml:"mode,omitempty"`
	SNR       int    `yaml:"snr,omitempty"`
	WPM       int    `yaml:"wpm,omitempty"`
	Kind      string `yaml:"kind,omitempty"`
	Zulu      string `yaml:"zulu,omitempty"`
}

// Line renders the step on the feed's column grid with CRLF.
func (s SpotStep) Line() string {
	l := testutil.DefaultSpotLine()
	if s.Spotter != "" {
		l.Spotter = s.Spotter
	}
	if s.Frequency != "" {
		l.Frequency = s.Frequency
	}
	if s.Callsign != "" {
		l.Callsign = s.Callsign
	}
	if s.Mode != "" {
		l.Mode = s.Mode
	}
	if s.SNR != 0 {
		l.SNR = s.SNR
	}
	if s.WPM != 0 {
		l.WPM = s.WPM
	}
	if s.Kind != "" {
		l.Kind = s.Kind
	}
	if s.Zulu != "" {
		l.Zulu = s.Zulu
	}
	return l.Wire()
}

// Assertion checks the trace or the store after the run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// States is the expected order of entered states (state_order).
	States []string `yaml:"states,omitempty"`

	// State and Count check how often a state was entered (state_count).
	State string `yaml:"state,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Event and Fields select trace events (trace_contains, event_count).
	Event  string         `yaml:"event,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`

	// Table, Where and Expect query the store (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertStateOrder    = "state_order"
	AssertStateCount    = "state_count"
	AssertTraceContains = "trace_contains"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads a scenario file. Unknown fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

var knownStates = func() map[string]bool {
	m := make(map[string]bool)
	for s := rbn.StateConnecting; s <= rbn.StateClosed; s++ {
		m[s.String()] = true
	}
	return m
}()

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Servers) == 0 {
		return fmt.Errorf("servers list is required and must be non-empty")
	}
	if !knownStates[s.Until] {
		return fmt.Errorf("until: unknown state %q", s.Until)
	}
	if s.Occurrence < 0 {
		return fmt.Errorf("occurrence must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, srv := range s.Servers {
		if srv.Cluster == "" {
			return fmt.Errorf("servers[%d]: cluster is required", i)
		}
		if seen[srv.Cluster] {
			return fmt.Errorf("servers[%d]: duplicate cluster %q", i, srv.Cluster)
		}
		seen[srv.Cluster] = true
		if srv.Refuse && len(srv.Sessions) > 0 {
			return fmt.Errorf("servers[%d]: a refusing server has no sessions", i)
		}
		for j, script := range srv.Sessions {
			for k, step := range script {
				if n := step.actions(); n != 1 {
					return fmt.Errorf("servers[%d].sessions[%d][%d]: exactly one action required, got %d", i, j, k, n)
				}
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s Step) actions() int {
	n := 0
	if s.Send != "" {
		n++
	}
	if s.Spot != nil {
		n++
	}
	if s.Expect != "" {
		n++
	}
	if s.Wait > 0 {
		n++
	}
	if s.Hold {
		n++
	}
	return n
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertStateOrder:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for state_order", index)
		}
		for _, st := range a.States {
			if !knownStates[st] {
				return fmt.Errorf("assertions[%d]: unknown state %q", index, st)
			}
		}
	case AssertStateCount:
		if !knownStates[a.State] {
			return fmt.Errorf("assertions[%d]: unknown state %q", index, a.State)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for state_count", index)
		}
	case AssertTraceContains, AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
