// Package harness provides a scenario-driven conformance harness for arbor
// stores.
//
// A scenario is a YAML document: an initial state tree, a set of named path
// subscriptions, a sequence of mutation steps, and assertions over the
// callback fires, change batches, and final state the steps produce. The
// harness runs each scenario against a fresh store with sequential revision
// tokens, so executions are deterministic and traces can be compared against
// golden files.
//
// Steps declare their outcome: a step without an expect clause must succeed,
// a step with expect.error must fail with a matching message. Error
// injection (fail_next) arms a one-shot callback failure, which is how the
// rollback and round-abort paths are exercised from YAML.
package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kestrelo/arbor"
)

// Harness is the scenario execution engine. It owns the store under test
// and the per-watch bookkeeping the trace and assertions are built from.
type Harness struct {
	store     *arbor.Store
	result    *Result
	selectors map[string]arbor.Selector
	failWatch map[string]bool // one-shot callback error armed per watch
	failBatch bool            // one-shot error armed on the change subscriber
	logger    *slog.Logger
}

// errInjected is the error surfaced by armed fail_next steps.
var errInjected = errors.New("injected callback failure")

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store with rev-N revision tokens for
// reproducible traces. Steps execute in order; a step that fails without
// declaring the failure stops the run and marks the result failed.
// Assertions are evaluated afterwards against the collected trace and the
// final state.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		result:    NewResult(),
		selectors: make(map[string]arbor.Selector),
		failWatch: make(map[string]bool),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	store, err := arbor.New(scenario.Initial,
		arbor.WithRevisionSource(&arbor.SequentialSource{}),
		arbor.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}
	h.store = store

	if err := h.registerWatches(scenario.Watch); err != nil {
		return nil, err
	}
	if scenario.WatchChanges {
		h.store.SubscribeToChanges(h.batchCallback())
	}

	for i, step := range scenario.Steps {
		ok, err := h.executeStep(fmt.Sprintf("steps[%d]", i), &step)
		if err != nil {
			return nil, err
		}
		if !ok {
			break // declared-outcome mismatch already recorded
		}
	}

	h.result.Final = h.store.Snapshot()
	hash, err := arbor.SnapshotHash(h.result.Final)
	if err != nil {
		return nil, fmt.Errorf("failed to hash final state: %w", err)
	}
	h.result.Hash = hash

	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

// registerWatches subscribes every declared watch. The immediate fire at
// subscription time lands in the trace like any other.
func (h *Harness) registerWatches(watches []WatchSpec) error {
	for _, w := range watches {
		sel := pathSelector(w.Path)
		h.selectors[w.Name] = sel
		if _, err := h.store.Subscribe(sel, h.fireCallback(w.Name)); err != nil {
			return fmt.Errorf("failed to register watch %q: %w", w.Name, err)
		}
	}
	return nil
}

// fireCallback builds the callback for a named watch: it honors armed
// failures, then records the fire into the trace and bookkeeping maps.
func (h *Harness) fireCallback(name string) arbor.Callback {
	return func(value any) error {
		if h.failWatch[name] {
			h.failWatch[name] = false
			return fmt.Errorf("watch %s: %w", name, errInjected)
		}
		copied := deepCopyValue(value)
		h.result.Fires[name]++
		h.result.Last[name] = copied
		h.result.AddFireTrace(name, copied, h.store.Seq())
		return nil
	}
}

// batchCallback builds the change-log callback: it honors an armed failure,
// then records the batch with the store's seq and revision.
func (h *Harness) batchCallback() arbor.ChangeCallback {
	return func(batch []arbor.Change) error {
		if h.failBatch {
			h.failBatch = false
			return fmt.Errorf("change subscriber: %w", errInjected)
		}
		h.result.Batches++
		h.result.Changes += len(batch)
		h.result.AddBatchTrace(changesToTrace(batch), h.store.Seq(), h.store.Revision())
		return nil
	}
}

// executeStep runs one step and checks its declared outcome. The bool
// reports whether the run should continue.
func (h *Harness) executeStep(label string, step *Step) (bool, error) {
	value, stepErr, err := h.dispatchStep(step)
	if err != nil {
		return false, err
	}

	if step.Expect != nil && step.Expect.Error != "" {
		if stepErr == nil {
			h.result.AddError(fmt.Sprintf("%s: expected error containing %q, step succeeded", label, step.Expect.Error))
			return false, nil
		}
		if !strings.Contains(stepErr.Error(), step.Expect.Error) {
			h.result.AddError(fmt.Sprintf("%s: expected error containing %q, got %q", label, step.Expect.Error, stepErr.Error()))
			return false, nil
		}
		h.result.AddErrorTrace(step.Op, step.Path, stepErr.Error(), h.store.Seq())
		return true, nil
	}

	if stepErr != nil {
		h.result.AddError(fmt.Sprintf("%s: %s failed: %v", label, step.Op, stepErr))
		return false, nil
	}

	if step.Expect != nil && step.Expect.Result != nil {
		if !valuesEqual(step.Expect.Result, value) {
			h.result.AddError(fmt.Sprintf("%s: expected result %v, got %v", label, step.Expect.Result, value))
			return false, nil
		}
	}

	switch step.Op {
	case "pop", "shift", "splice", "push", "unshift":
		h.result.AddResultTrace(step.Op, step.Path, deepCopyValue(value), h.store.Seq())
	}

	return true, nil
}

// dispatchStep performs the operation itself. The first return is the
// operation's result value for ops that produce one, the second the
// operation's own error, the third an infrastructure failure that should
// abort the whole run.
func (h *Harness) dispatchStep(step *Step) (any, error, error) {
	node := h.node(step.Path)

	switch step.Op {
	case "set":
		return nil, node.Set(step.Key, step.Value), nil
	case "delete":
		return nil, node.Delete(step.Key), nil
	case "set_at":
		return nil, node.SetAt(step.Index, step.Value), nil
	case "push":
		n, err := node.Push(step.Values...)
		return n, err, nil
	case "unshift":
		n, err := node.Unshift(step.Values...)
		return n, err, nil
	case "pop":
		v, err := node.Pop()
		return v, err, nil
	case "shift":
		v, err := node.Shift()
		return v, err, nil
	case "splice":
		removed, err := node.Splice(step.Start, step.DeleteCount, step.Values...)
		return removed, err, nil
	case "sort":
		return nil, node.Sort(), nil
	case "reverse":
		return nil, node.Reverse(), nil
	case "fill":
		return nil, node.Fill(step.Value, step.Start, step.End), nil
	case "copy_within":
		return nil, node.CopyWithin(step.Target, step.Start, step.End), nil
	case opTransaction:
		err := h.store.Apply(func(*arbor.Node) error {
			for i, sub := range step.Steps {
				ok, infraErr := h.executeStep(fmt.Sprintf("transaction.steps[%d]", i), &sub)
				if infraErr != nil {
					return infraErr
				}
				if !ok {
					return fmt.Errorf("transaction aborted at step %d", i)
				}
			}
			return nil
		})
		return nil, err, nil
	case opTrigger:
		return nil, h.store.Trigger(h.selectors[step.Watch]), nil
	case opApplyChanges:
		return nil, h.store.ApplyChanges(changesFromSpecs(step.Changes)), nil
	case opFailNext:
		if step.Watch == "" {
			h.failBatch = true
		} else {
			h.failWatch[step.Watch] = true
		}
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

// node resolves a dotted path to a cursor. The empty path is the root.
func (h *Harness) node(path string) *arbor.Node {
	root := h.store.Root()
	if path == "" {
		return root
	}
	return root.Get(strings.Split(path, ".")...)
}

// pathSelector builds a selector that reads one dotted path. Index
// segments descend into sequences.
func pathSelector(path string) arbor.Selector {
	segments := strings.Split(path, ".")
	return func(t *arbor.Tracked) any {
		return t.Get(segments...)
	}
}

// changesFromSpecs converts YAML change specs into change records.
func changesFromSpecs(specs []ChangeSpec) []arbor.Change {
	batch := make([]arbor.Change, len(specs))
	for i, spec := range specs {
		batch[i] = arbor.Change{
			Type:    arbor.ChangeType(spec.Type),
			Path:    spec.Path,
			Value:   spec.Value,
			Deleted: spec.Deleted,
			Method:  spec.Method,
			Args:    spec.Args,
		}
	}
	return batch
}

// changesToTrace converts a delivered batch into trace-friendly maps,
// deep-copying carried values so later mutations cannot rewrite history.
func changesToTrace(batch []arbor.Change) []any {
	out := make([]any, len(batch))
	for i, ch := range batch {
		m := map[string]any{
			"type": string(ch.Type),
			"path": ch.Path,
		}
		switch ch.Type {
		case arbor.ChangeArray:
			m["method"] = ch.Method
			if len(ch.Args) > 0 {
				m["args"] = deepCopyValue(ch.Args).([]any)
			}
		default:
			if ch.Deleted {
				m["deleted"] = true
			} else {
				m["value"] = deepCopyValue(ch.Value)
			}
		}
		out[i] = m
	}
	return out
}

// deepCopyValue clones maps and sequences so trace entries stay frozen at
// record time. Leaf values are immutable and shared.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = deepCopyValue(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = deepCopyValue(child)
		}
		return out
	default:
		return v
	}
}
