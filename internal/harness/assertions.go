package harness

import (
	"fmt"
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

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Full trace for context
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		switch event.Type {
		case "fire":
			fmt.Fprintf(&buf, "  [%d] fire %s = %v (seq %d)\n", i+1, event.Watch, event.Value, event.Seq)
		case "batch":
			fmt.Fprintf(&buf, "  [%d] batch %d change(s) (seq %d, %s)\n", i+1, len(event.Changes), event.Seq, event.Revision)
		case "result":
			fmt.Fprintf(&buf, "  [%d] %s %s -> %v\n", i+1, event.Op, event.Path, event.Value)
		case "error":
			fmt.Fprintf(&buf, "  [%d] %s %s failed: %s\n", i+1, event.Op, event.Path, event.Error)
		}
	}

	return buf.String()
}

// assertFireCount checks that a watch fired exactly the specified number of
// times, counting the immediate fire at subscription.
func assertFireCount(result *Result, assertion Assertion) error {
	count := result.Fires[assertion.Watch]
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertFireCount,
			Expected: fmt.Sprintf("%d fire(s) of watch %s", assertion.Count, assertion.Watch),
			Actual:   fmt.Sprintf("%d fire(s)", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertLastValue checks the most recent value delivered to a watch.
func assertLastValue(result *Result, assertion Assertion) error {
	last, fired := result.Last[assertion.Watch]
	if !fired {
		return &AssertionError{
			Type:     AssertLastValue,
			Expected: fmt.Sprintf("watch %s delivered %v", assertion.Watch, assertion.Value),
			Actual:   "watch never fired",
			Trace:    result.Trace,
		}
	}
	if !valuesEqual(assertion.Value, last) {
		return &AssertionError{
			Type:     AssertLastValue,
			Expected: fmt.Sprintf("watch %s delivered %v (type %T)", assertion.Watch, assertion.Value, assertion.Value),
			Actual:   fmt.Sprintf("delivered %v (type %T)", last, last),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertBatchCount checks the number of delivered change batches.
func assertBatchCount(result *Result, assertion Assertion) error {
	if result.Batches != assertion.Count {
		return &AssertionError{
			Type:     AssertBatchCount,
			Expected: fmt.Sprintf("%d change batch(es)", assertion.Count),
			Actual:   fmt.Sprintf("%d batch(es)", result.Batches),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertChangeCount checks the number of records across all batches.
func assertChangeCount(result *Result, assertion Assertion) error {
	if result.Changes != assertion.Count {
		return &AssertionError{
			Type:     AssertChangeCount,
			Expected: fmt.Sprintf("%d change record(s)", assertion.Count),
			Actual:   fmt.Sprintf("%d record(s)", result.Changes),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState checks the value at a dotted path in the final state.
// With Absent set the path must not resolve; otherwise the resolved value
// must equal the expected one.
func assertFinalState(result *Result, assertion Assertion) error {
	value, found := resolvePath(result.Final, assertion.Path)

	if assertion.Absent {
		if found {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("no value at %s", assertion.Path),
				Actual:   fmt.Sprintf("found %v (type %T)", value, value),
				Trace:    result.Trace,
			}
		}
		return nil
	}

	if !found {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%v at %s", assertion.Value, assertion.Path),
			Actual:   "path does not resolve",
			Trace:    result.Trace,
		}
	}
	if !valuesEqual(assertion.Value, value) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%v (type %T) at %s", assertion.Value, assertion.Value, assertion.Path),
			Actual:   fmt.Sprintf("%v (type %T)", value, value),
			Trace:    result.Trace,
		}
	}
	return nil
}

// resolvePath walks a dotted path through maps and sequences. Index
// segments address sequence elements. The empty path is the root.
func resolvePath(root map[string]any, path string) (any, bool) {
	var cur any = root
	if path == "" {
		return cur, true
	}
	for _, seg := range strings.Split(path, ".") {
		switch container := cur.(type) {
		case map[string]any:
			v, ok := container[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(container) {
				return nil, false
			}
			cur = container[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// valuesEqual compares an expected value (from YAML) against an actual
// value (from the store). Numbers are compared by magnitude because YAML
// decoding, JSON decoding, and store writes produce different Go integer
// and float types for the same literal.
func valuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	if ef, eok := toFloat(expected); eok {
		af, aok := toFloat(actual)
		return aok && ef == af
	}

	switch exp := expected.(type) {
	case string:
		s, ok := actual.(string)
		return ok && exp == s
	case bool:
		b, ok := actual.(bool)
		return ok && exp == b
	case []any:
		act, ok := actual.([]any)
		if !ok || len(exp) != len(act) {
			return false
		}
		for i := range exp {
			if !valuesEqual(exp[i], act[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok || len(exp) != len(act) {
			return false
		}
		for k, ev := range exp {
			av, present := act[k]
			if !present || !valuesEqual(ev, av) {
				return false
			}
		}
		return true
	}

	// Fallback for anything exotic
	return reflect.DeepEqual(expected, actual)
}

// toFloat normalizes every numeric kind the data model accepts.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFireCount:
			err = assertFireCount(result, assertion)
		case AssertLastValue:
			err = assertLastValue(result, assertion)
		case AssertBatchCount:
			err = assertBatchCount(result, assertion)
		case AssertChangeCount:
			err = assertChangeCount(result, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
