package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/kestrelo/arbor"
)

// TraceSnapshot captures the complete observable output of a scenario
// execution. All fields use canonical JSON serialization for deterministic
// comparison.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []TraceEvent   `json:"trace"`
	Final        map[string]any `json:"final"`
	Hash         string         `json:"hash"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any so the
// canonical marshaller can serialize it with sorted keys.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"seq":  event.Seq,
		}
		if event.Watch != "" {
			eventMap["watch"] = event.Watch
		}
		if event.Op != "" {
			eventMap["op"] = event.Op
		}
		if event.Path != "" {
			eventMap["path"] = event.Path
		}
		if event.Type == "fire" || event.Type == "result" {
			// nil is a legal delivered value, so fires and results always
			// carry the field.
			eventMap["value"] = event.Value
		}
		if event.Changes != nil {
			eventMap["changes"] = event.Changes
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		if event.Revision != "" {
			eventMap["revision"] = event.Revision
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"final":         s.Final,
		"hash":          s.Hash,
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for expected fires, batches,
// and final state. Test failure (via goldie) occurs if the trace doesn't
// match.
//
// Returns error if scenario execution itself fails.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		Trace:        result.Trace,
		Final:        result.Final,
		Hash:         result.Hash,
	}

	traceJSON, err := arbor.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return nil
}

// AssertGolden compares an already-executed result's trace against a golden
// file. Useful when the caller ran the scenario itself and wants the
// comparison without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Final:        result.Final,
		Hash:         result.Hash,
	}

	traceJSON, err := arbor.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
