package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/skimmer/internal/store"
)

// validIdentifier guards table and column names interpolated into SQL.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, describe(ev))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	switch ev.Type {
	case EventTransition:
		return fmt.Sprintf("%s -> %s", orDash(ev.From), ev.To)
	case EventAttempt:
		return "attempt " + ev.Cluster
	case EventFailure:
		return fmt.Sprintf("failure %s (%s)", ev.Cluster, ev.Reason)
	case EventSession:
		return fmt.Sprintf("session %s on %s", ev.Session, ev.Cluster)
	case EventSpot:
		return fmt.Sprintf("spot %s by %s on %s", ev.Callsign, ev.Spotter, ev.Frequency)
	case EventReject:
		return "reject " + ev.Code
	default:
		return ev.Type
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// assertStateOrder checks that the states were entered in the given order.
// Other transitions may occur in between.
func assertStateOrder(result *Result, a Assertion) error {
	entered := result.Transitions()
	next := 0
	for _, st := range entered {
		if next < len(a.States) && st == a.States[next] {
			next++
		}
	}
	if next == len(a.States) {
		return nil
	}
	return &AssertionError{
		Type:     AssertStateOrder,
		Expected: fmt.Sprintf("states in order: %v", a.States),
		Actual:   fmt.Sprintf("entered %v, missing %s", entered, a.States[next]),
		Trace:    result.Trace,
	}
}

func assertStateCount(result *Result, a Assertion) error {
	count := 0
	for _, st := range result.Transitions() {
		if st == a.State {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertStateCount,
		Expected: fmt.Sprintf("%d entries of %s", a.Count, a.State),
		Actual:   fmt.Sprintf("%d entries", count),
		Trace:    result.Trace,
	}
}

// matching counts events of the given type whose fields contain a.Fields.
func matching(trace []TraceEvent, a Assertion) int {
	n := 0
	for _, ev := range trace {
		if ev.Type == a.Event && matchFields(ev.fields(), a.Fields) {
			n++
		}
	}
	return n
}

func assertTraceContains(result *Result, a Assertion) error {
	if matching(result.Trace, a) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event with %v", a.Event, a.Fields),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

func assertEventCount(result *Result, a Assertion) error {
	if n := matching(result.Trace, a); n != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events with %v", a.Count, a.Event, a.Fields),
			Actual:   fmt.Sprintf("%d events", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState selects exactly one row from a store table and checks
// the expected columns.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}
	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}
	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	for _, key := range sortedKeys(a.Expect) {
		actual, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q", key),
				Actual:   fmt.Sprintf("columns are %v", columns),
			}
		}
		if !valuesEqual(a.Expect[key], actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s = %v (%T)", key, a.Expect[key], a.Expect[key]),
				Actual:   fmt.Sprintf("%s = %v (%T)", key, actual, actual),
			}
		}
	}
	return nil
}

// buildWhereClause returns a parameterized WHERE fragment with keys in
// sorted order.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(want, got) {
			return false
		}
	}
	return true
}

// valuesEqual compares a YAML value with a trace or SQLite value.
// Numbers compare by value whatever their Go type.
func valuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if e, ok := toFloat(expected); ok {
		a, ok := toFloat(actual)
		return ok && e == a
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	return reflect.DeepEqual(expected, actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// EvaluateAssertions checks every assertion and returns the failures.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, st *store.Store) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertStateOrder:
			err = assertStateOrder(result, a)
		case AssertStateCount:
			err = assertStateCount(result, a)
		case AssertTraceContains:
			err = assertTraceContains(result, a)
		case AssertEventCount:
			err = assertEventCount(result, a)
		case AssertFinalState:
			if st == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a store", i)
			} else {
				err = assertFinalState(ctx, st, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}
