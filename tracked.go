package arbor

import (
	"fmt"
	"strconv"
)

// readTracker accumulates the rendered paths one selector evaluation
// touches. A fresh tracker is created per evaluation, so dependency sets
// reflect the branch the selector actually took this time.
type readTracker struct {
	paths map[string]struct{}
}

func newReadTracker() *readTracker {
	return &readTracker{paths: make(map[string]struct{})}
}

func (t *readTracker) record(path string) {
	t.paths[path] = struct{}{}
}

// Tracked is the read-only view selectors navigate. Every Get, At, and Len
// records the path it touched; the recorded set becomes the observer's
// dependencies until its next evaluation. Tracked has no mutation surface.
type Tracked struct {
	value any
	path  string
	tr    *readTracker
}

func newTracked(root map[string]any, tr *readTracker) *Tracked {
	return &Tracked{value: root, tr: tr}
}

// Get descends one segment per argument, recording each step: a map key, or
// a decimal index into a sequence. Missing keys and out-of-range indices are
// recorded too and yield a nil-valued view: a selector may depend on a path
// that does not exist yet, and must re-run when something appears there.
func (t *Tracked) Get(segments ...string) *Tracked {
	cur := t
	for _, seg := range segments {
		p := childPath(cur.path, seg)
		cur.tr.record(p)

		var next any
		switch c := cur.value.(type) {
		case map[string]any:
			next = c[seg]
		case []any:
			if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(c) {
				next = c[i]
			}
		}
		cur = &Tracked{value: next, path: p, tr: cur.tr}
	}
	return cur
}

// At descends into a sequence element, recording the index path.
func (t *Tracked) At(i int) *Tracked {
	return t.Get(indexSegment(i))
}

// Len returns the sequence length, 0 for anything else. The read is
// recorded against the pseudo-member "length" so that mutations which only
// resize the sequence still reach observers of its length.
func (t *Tracked) Len() int {
	t.tr.record(childPath(t.path, "length"))
	if seq, ok := t.value.([]any); ok {
		return len(seq)
	}
	return 0
}

// Has reports whether the key exists, recording the read at the key's path.
func (t *Tracked) Has(key string) bool {
	t.tr.record(childPath(t.path, key))
	m, ok := t.value.(map[string]any)
	if !ok {
		return false
	}
	_, present := m[key]
	return present
}

// Value unwraps to the raw backing value without recording anything.
// Selectors call it to return leaf values; returning the Tracked itself
// works too, the store unwraps it.
func (t *Tracked) Value() any {
	return t.value
}

// Path returns the dotted path of this view. Empty at the root.
func (t *Tracked) Path() string {
	return t.path
}

// String renders the underlying value for debugging. Deliberately not a
// tracked read: printing a view in a log line must not widen the observer's
// dependency set.
func (t *Tracked) String() string {
	return fmt.Sprintf("%v", t.value)
}
