// Package testutil provides deterministic helpers for exercising stores in
// tests: callback recorders, state builders, and path selectors.
//
// The helpers are not safe for concurrent use; like the store itself, they
// assume the single-owner execution model.
package testutil

import "github.com/kestrelo/arbor"

// Recorder captures observer callback invocations in order.
//
// Combined with a fixed revision source, a Recorder makes a test's whole
// notification history assertable: which values arrived, how many times, and
// what the last one was.
type Recorder struct {
	values  []any
	failErr error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Callback returns the recording callback to pass to Subscribe.
func (r *Recorder) Callback() arbor.Callback {
	return func(value any) error {
		if err := r.failErr; err != nil {
			r.failErr = nil
			return err
		}
		r.values = append(r.values, value)
		return nil
	}
}

// FailNext makes the next callback invocation return err without recording,
// then clears. Used to test rollback and error propagation.
func (r *Recorder) FailNext(err error) {
	r.failErr = err
}

// Values returns every recorded value in arrival order.
func (r *Recorder) Values() []any {
	return r.values
}

// Count returns the number of recorded invocations.
func (r *Recorder) Count() int {
	return len(r.values)
}

// Last returns the most recent value, nil if nothing was recorded.
func (r *Recorder) Last() any {
	if len(r.values) == 0 {
		return nil
	}
	return r.values[len(r.values)-1]
}

// Reset discards recorded values. A pending FailNext survives.
func (r *Recorder) Reset() {
	r.values = nil
}

// BatchRecorder captures change-log batches in commit order.
type BatchRecorder struct {
	batches [][]arbor.Change
	failErr error
}

// NewBatchRecorder creates an empty batch recorder.
func NewBatchRecorder() *BatchRecorder {
	return &BatchRecorder{}
}

// Callback returns the recording callback to pass to SubscribeToChanges.
func (r *BatchRecorder) Callback() arbor.ChangeCallback {
	return func(batch []arbor.Change) error {
		if err := r.failErr; err != nil {
			r.failErr = nil
			return err
		}
		r.batches = append(r.batches, batch)
		return nil
	}
}

// FailNext makes the next batch delivery return err without recording, then
// clears.
func (r *BatchRecorder) FailNext(err error) {
	r.failErr = err
}

// Batches returns every recorded batch in commit order.
func (r *BatchRecorder) Batches() [][]arbor.Change {
	return r.batches
}

// Count returns the number of recorded batches.
func (r *BatchRecorder) Count() int {
	return len(r.batches)
}

// Reset discards recorded batches. A pending FailNext survives.
func (r *BatchRecorder) Reset() {
	r.batches = nil
}
