package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios build a store from an initial state, register watches, run a
// sequence of mutation steps, and assert on the fires, batches, and final
// state that result.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Initial is the starting state tree. May be empty.
	Initial map[string]any `yaml:"initial,omitempty"`

	// Watch lists value subscriptions to register before the steps run.
	// Each registration fires its callback once immediately.
	Watch []WatchSpec `yaml:"watch,omitempty"`

	// WatchChanges registers a change-log subscriber that records every
	// delivered batch into the trace.
	WatchChanges bool `yaml:"watch_changes,omitempty"`

	// Steps contains the mutations to execute in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the fires, batches, and final state.
	// Supported types: fire_count, last_value, batch_count, change_count,
	// final_state
	Assertions []Assertion `yaml:"assertions"`
}

// WatchSpec registers a named path subscription.
type WatchSpec struct {
	// Name labels this watch in traces and assertions.
	Name string `yaml:"name"`

	// Path is the dotted path the selector reads. Index segments descend
	// into sequences.
	Path string `yaml:"path"`
}

// Step is one mutation in a scenario. Op selects the operation; the other
// fields parameterize it. Unused fields stay at their zero values.
type Step struct {
	// Op is the operation to perform:
	//   set, delete       - map writes (path + key, set also value)
	//   set_at            - sequence element write (path + index + value)
	//   push, unshift     - append/prepend values (path + values)
	//   pop, shift        - remove from end/front (path)
	//   splice            - remove and insert (path + start + delete_count + values)
	//   sort, reverse     - reorder in place (path)
	//   fill              - overwrite a range (path + value + start + end)
	//   copy_within       - copy a range (path + target + start + end)
	//   transaction       - run nested steps as one batch (steps)
	//   trigger           - force a watch to fire (watch)
	//   apply_changes     - replay a recorded batch (changes)
	//   fail_next         - arm a one-shot callback error (watch, or the
	//                       change subscriber when watch is empty)
	Op string `yaml:"op"`

	Path        string       `yaml:"path,omitempty"`
	Key         string       `yaml:"key,omitempty"`
	Value       any          `yaml:"value,omitempty"`
	Index       int          `yaml:"index,omitempty"`
	Values      []any        `yaml:"values,omitempty"`
	Start       int          `yaml:"start,omitempty"`
	DeleteCount int          `yaml:"delete_count,omitempty"`
	End         int          `yaml:"end,omitempty"`
	Target      int          `yaml:"target,omitempty"`
	Watch       string       `yaml:"watch,omitempty"`
	Steps       []Step       `yaml:"steps,omitempty"`
	Changes     []ChangeSpec `yaml:"changes,omitempty"`

	// Expect declares the step's outcome. Without it the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ChangeSpec is the YAML form of a change record for apply_changes steps.
type ChangeSpec struct {
	Type    string `yaml:"type"` // "property" or "array"
	Path    string `yaml:"path"`
	Value   any    `yaml:"value,omitempty"`
	Deleted bool   `yaml:"deleted,omitempty"`
	Method  string `yaml:"method,omitempty"`
	Args    []any  `yaml:"args,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is a substring the step's error must contain. The step must
	// fail when set.
	Error string `yaml:"error,omitempty"`

	// Result is the expected return value for ops that produce one
	// (push, unshift, pop, shift, splice).
	Result any `yaml:"result,omitempty"`
}

// Assertion validates fires, batches, or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fire_count": a watch fired exactly Count times
	// - "last_value": the last value delivered to a watch equals Value
	// - "batch_count": exactly Count change batches were delivered
	// - "change_count": exactly Count records were delivered across batches
	// - "final_state": the value at Path in the final state equals Value,
	//   or is absent when Absent is set
	Type string `yaml:"type"`

	// Watch names the subscription (fire_count, last_value).
	Watch string `yaml:"watch,omitempty"`

	// Count is the expected number of occurrences (fire_count,
	// batch_count, change_count).
	Count int `yaml:"count,omitempty"`

	// Path addresses the final state (final_state). Empty means the root.
	Path string `yaml:"path,omitempty"`

	// Value is the expected value (last_value, final_state).
	Value any `yaml:"value,omitempty"`

	// Absent asserts the path does not resolve (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertFireCount   = "fire_count"
	AssertLastValue   = "last_value"
	AssertBatchCount  = "batch_count"
	AssertChangeCount = "change_count"
	AssertFinalState  = "final_state"
)

// Step op constants for ops the validator needs by name.
const (
	opTransaction  = "transaction"
	opTrigger      = "trigger"
	opApplyChanges = "apply_changes"
	opFailNext     = "fail_next"
)

// mutationOps lists the ops that act on a path, with the extra fields
// each one requires beyond the path itself.
var mutationOps = map[string][]string{
	"set":         {"key"},
	"delete":      {"key"},
	"set_at":      nil,
	"push":        {"values"},
	"unshift":     {"values"},
	"pop":         nil,
	"shift":       nil,
	"splice":      nil,
	"sort":        nil,
	"reverse":     nil,
	"fill":        nil,
	"copy_within": nil,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	// Validate watches: names must be present and unique
	seen := make(map[string]bool)
	for i, w := range s.Watch {
		if w.Name == "" {
			return fmt.Errorf("watch[%d]: name is required", i)
		}
		if w.Path == "" {
			return fmt.Errorf("watch[%d]: path is required", i)
		}
		if seen[w.Name] {
			return fmt.Errorf("watch[%d]: duplicate name %q", i, w.Name)
		}
		seen[w.Name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), &step, seen); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, seen); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step, recursing into transactions.
func validateStep(label string, step *Step, watches map[string]bool) error {
	if step.Op == "" {
		return fmt.Errorf("%s: op is required", label)
	}

	switch step.Op {
	case opTransaction:
		if len(step.Steps) == 0 {
			return fmt.Errorf("%s: transaction requires nested steps", label)
		}
		for i, sub := range step.Steps {
			if sub.Op == opTransaction {
				// Nested transactions are legal at runtime but make
				// scenarios unreadable.
				return fmt.Errorf("%s.steps[%d]: transactions do not nest in scenarios", label, i)
			}
			if err := validateStep(fmt.Sprintf("%s.steps[%d]", label, i), &sub, watches); err != nil {
				return err
			}
		}
	case opTrigger:
		if step.Watch == "" {
			return fmt.Errorf("%s: trigger requires a watch name", label)
		}
		if !watches[step.Watch] {
			return fmt.Errorf("%s: unknown watch %q", label, step.Watch)
		}
	case opApplyChanges:
		if len(step.Changes) == 0 {
			return fmt.Errorf("%s: apply_changes requires changes", label)
		}
		for i, ch := range step.Changes {
			if ch.Type != "property" && ch.Type != "array" {
				return fmt.Errorf("%s.changes[%d]: unknown change type %q", label, i, ch.Type)
			}
		}
	case opFailNext:
		if step.Watch != "" && !watches[step.Watch] {
			return fmt.Errorf("%s: unknown watch %q", label, step.Watch)
		}
	default:
		extra, ok := mutationOps[step.Op]
		if !ok {
			return fmt.Errorf("%s: unknown op %q", label, step.Op)
		}
		for _, field := range extra {
			switch field {
			case "key":
				if step.Key == "" {
					return fmt.Errorf("%s: %s requires a key", label, step.Op)
				}
			case "values":
				if len(step.Values) == 0 {
					return fmt.Errorf("%s: %s requires values", label, step.Op)
				}
			}
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, watches map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFireCount:
		if a.Watch == "" {
			return fmt.Errorf("assertions[%d]: watch is required for fire_count", index)
		}
		if !watches[a.Watch] {
			return fmt.Errorf("assertions[%d]: unknown watch %q", index, a.Watch)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fire_count", index)
		}
	case AssertLastValue:
		if a.Watch == "" {
			return fmt.Errorf("assertions[%d]: watch is required for last_value", index)
		}
		if !watches[a.Watch] {
			return fmt.Errorf("assertions[%d]: unknown watch %q", index, a.Watch)
		}
	case AssertBatchCount, AssertChangeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertFinalState:
		if a.Absent && a.Value != nil {
			return fmt.Errorf("assertions[%d]: absent and value are mutually exclusive", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
