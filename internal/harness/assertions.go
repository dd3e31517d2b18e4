package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Type, event.Value)
	}

	return buf.String()
}

// assertTraceContains checks that some emitted state has the expected type
// and matches the where clause (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == assertion.State && matchFields(event.Value, assertion.Where) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("state %s matching %v", assertion.State, assertion.Where),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the state types appear in the specified order.
// States don't need to be consecutive (intervening states are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.States) && event.Type == assertion.States[next] {
			next++
		}
	}

	if next < len(assertion.States) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("states in order: %v", assertion.States),
			Actual:   fmt.Sprintf("matched %d of %d, missing %s", next, len(assertion.States), assertion.States[next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks that the state type was emitted exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == assertion.State {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s emitted %d times", assertion.State, assertion.Count),
			Actual:   fmt.Sprintf("emitted %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the last emitted state.
func assertFinalState(trace []TraceEvent, assertion Assertion) error {
	if len(trace) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("final state %s", assertion.State),
			Actual:   "no state emitted",
			Trace:    trace,
		}
	}

	last := trace[len(trace)-1]
	if last.Type != assertion.State || !matchFields(last.Value, assertion.Where) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("final state %s matching %v", assertion.State, assertion.Where),
			Actual:   fmt.Sprintf("%s %v", last.Type, last.Value),
			Trace:    trace,
		}
	}
	return nil
}

// assertAPICalls checks how often a collaborator method was called.
func assertAPICalls(result *Result, assertion Assertion) error {
	got := result.Calls[assertion.Method]
	if got != assertion.Count {
		return &AssertionError{
			Type:     AssertAPICalls,
			Expected: fmt.Sprintf("%s called %d times", assertion.Method, assertion.Count),
			Actual:   fmt.Sprintf("called %d times", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// matchFields checks that actual is an object containing every expected
// field with an equal value. Extra fields in actual are OK (subset match).
func matchFields(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}

	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}

	for key, expectedVal := range expected {
		actualVal, exists := actualMap[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// findItem returns the element of value["items"] whose id is id.
func findItem(value any, id any) (map[string]any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	items, ok := obj["items"].([]any)
	if !ok {
		return nil, false
	}
	want := fmt.Sprint(id)
	for _, it := range items {
		item, ok := it.(map[string]any)
		if ok && item["id"] == want {
			return item, true
		}
	}
	return nil, false
}

// valuesEqual compares a JSON-decoded actual value with a YAML-decoded
// expected value. Numbers compare by their integer text, a number expected
// for a list compares the list's length, and objects match as subsets.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	switch a := actual.(type) {
	case json.Number:
		text, ok := integerText(expected)
		return ok && a.String() == text
	case string:
		if s, ok := expected.(string); ok {
			return a == s
		}
		text, ok := integerText(expected)
		return ok && a == text
	case []any:
		if text, ok := integerText(expected); ok {
			return strconv.Itoa(len(a)) == text
		}
		exp, ok := expected.([]any)
		if !ok || len(exp) != len(a) {
			return false
		}
		for i := range a {
			if !valuesEqual(a[i], exp[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		exp, ok := expected.(map[string]any)
		return ok && matchFields(a, exp)
	}

	return reflect.DeepEqual(actual, expected)
}

// integerText renders a YAML-decoded integer as decimal text.
func integerText(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return strconv.FormatInt(int64(n), 10), true
		}
	}
	return "", false
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.Trace, assertion)
		case AssertAPICalls:
			err = assertAPICalls(result, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, assertion.Type, err))
		}
	}

	return errs
}
