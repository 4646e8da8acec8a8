package arbor

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
)

// Node is the writable cursor into the tree. It holds a path, not data: every
// operation resolves the path against the current tree first, so a Node stays
// usable across mutations elsewhere and simply stops resolving if its subtree
// is detached. Container-valued Get results are referentially stable: the
// same unreplaced container yields the same *Node, a replaced one yields a
// fresh *Node (see accessorCache).
//
// Reads through a Node are never recorded and never notify. Writes validate
// first, apply, then commit a change record; a standalone write whose
// subscribers fail is rolled back before the error returns.
type Node struct {
	store    *Store
	segments []string
	rendered string
}

// Path returns the dotted path of this cursor. Empty at the root.
func (n *Node) Path() string {
	return n.rendered
}

// Value returns the raw value at this path, nil if the path no longer
// resolves. Containers are returned as-is, not copied; treat them as
// read-only and mutate through the Node instead, or the change will be
// invisible to observers.
func (n *Node) Value() any {
	v, _ := n.store.resolve(n.segments)
	return v
}

// Has reports whether key exists in the map at this path.
func (n *Node) Has(key string) bool {
	m, ok := n.Value().(map[string]any)
	if !ok {
		return false
	}
	_, present := m[key]
	return present
}

// Len returns the sequence length at this path, 0 for anything else.
func (n *Node) Len() int {
	if seq, ok := n.Value().([]any); ok {
		return len(seq)
	}
	return 0
}

// Get descends one map key (or rendered index) per argument and returns the
// cursor for the final path. The path does not need to exist.
func (n *Node) Get(keys ...string) *Node {
	cur := n
	for _, key := range keys {
		cur = cur.child(key)
	}
	return cur
}

// At returns the cursor for the i-th element of the sequence at this path.
func (n *Node) At(i int) *Node {
	return n.child(indexSegment(i))
}

func (n *Node) child(segment string) *Node {
	segs := make([]string, 0, len(n.segments)+1)
	segs = append(segs, n.segments...)
	segs = append(segs, segment)
	return n.store.nodeAt(segs)
}

// String renders the current value for debugging.
func (n *Node) String() string {
	return fmt.Sprintf("%v", n.Value())
}

// Set writes key in the map at this path and commits a property change.
func (n *Node) Set(key string, v any) error {
	if err := validateKey(key, n.rendered); err != nil {
		return err
	}
	p := childPath(n.rendered, key)
	if err := validateValue(v, p); err != nil {
		return err
	}
	m, err := n.mapTarget("set")
	if err != nil {
		return err
	}

	prior, had := m[key]
	m[key] = v
	rollback := func() {
		if had {
			m[key] = prior
		} else {
			delete(m, key)
		}
	}
	return n.store.commit(newPropertyChange(p, v), rollback)
}

// Delete removes key from the map at this path. Deleting an absent key is a
// no-op and commits nothing.
func (n *Node) Delete(key string) error {
	m, err := n.mapTarget("delete")
	if err != nil {
		return err
	}
	prior, had := m[key]
	if !had {
		return nil
	}

	delete(m, key)
	rollback := func() { m[key] = prior }
	return n.store.commit(newDeleteChange(childPath(n.rendered, key)), rollback)
}

// SetAt overwrites the i-th element of the sequence at this path. Unlike the
// append-style mutators this commits a property change at the element's own
// path, and writing past the end is an error rather than a resize.
func (n *Node) SetAt(i int, v any) error {
	p := childPath(n.rendered, indexSegment(i))
	if err := validateValue(v, p); err != nil {
		return err
	}
	seq, err := n.sequenceTarget("setAt")
	if err != nil {
		return err
	}
	if i < 0 || i >= len(seq) {
		return newOpError("setAt", p, ErrIndexOutOfRange)
	}

	prior := seq[i]
	seq[i] = v
	rollback := func() { seq[i] = prior }
	return n.store.commit(newPropertyChange(p, v), rollback)
}

// Push appends items and returns the new length.
func (n *Node) Push(items ...any) (int, error) {
	seq, err := n.sequenceTarget("push")
	if err != nil {
		return 0, err
	}
	for i, item := range items {
		if err := validateValue(item, childPath(n.rendered, indexSegment(len(seq)+i))); err != nil {
			return 0, err
		}
	}

	next := make([]any, 0, len(seq)+len(items))
	next = append(next, seq...)
	next = append(next, items...)
	if err := n.replaceSequence("push", seq, next, slices.Clone(items)); err != nil {
		return 0, err
	}
	return len(next), nil
}

// Pop removes and returns the last element, nil when the sequence is empty.
// The empty case still commits a record; the mutator was invoked even though
// nothing moved.
func (n *Node) Pop() (any, error) {
	seq, err := n.sequenceTarget("pop")
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, n.store.commit(newArrayChange(n.rendered, "pop", nil), nil)
	}

	removed := seq[len(seq)-1]
	next := slices.Clone(seq[:len(seq)-1])
	if err := n.replaceSequence("pop", seq, next, nil); err != nil {
		return nil, err
	}
	return removed, nil
}

// Shift removes and returns the first element, nil when the sequence is
// empty.
func (n *Node) Shift() (any, error) {
	seq, err := n.sequenceTarget("shift")
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, n.store.commit(newArrayChange(n.rendered, "shift", nil), nil)
	}

	removed := seq[0]
	next := slices.Clone(seq[1:])
	if err := n.replaceSequence("shift", seq, next, nil); err != nil {
		return nil, err
	}
	return removed, nil
}

// Unshift prepends items and returns the new length.
func (n *Node) Unshift(items ...any) (int, error) {
	seq, err := n.sequenceTarget("unshift")
	if err != nil {
		return 0, err
	}
	for i, item := range items {
		if err := validateValue(item, childPath(n.rendered, indexSegment(i))); err != nil {
			return 0, err
		}
	}

	next := make([]any, 0, len(seq)+len(items))
	next = append(next, items...)
	next = append(next, seq...)
	if err := n.replaceSequence("unshift", seq, next, slices.Clone(items)); err != nil {
		return 0, err
	}
	return len(next), nil
}

// Splice removes deleteCount elements at start, inserts items in their
// place, and returns the removed elements. Start and deleteCount clamp to
// the sequence bounds (negative start counts from the end) instead of
// erroring.
func (n *Node) Splice(start, deleteCount int, items ...any) ([]any, error) {
	seq, err := n.sequenceTarget("splice")
	if err != nil {
		return nil, err
	}
	s := normIndex(start, len(seq))
	d := deleteCount
	if d < 0 {
		d = 0
	}
	if d > len(seq)-s {
		d = len(seq) - s
	}
	for i, item := range items {
		if err := validateValue(item, childPath(n.rendered, indexSegment(s+i))); err != nil {
			return nil, err
		}
	}

	removed := slices.Clone(seq[s : s+d])
	next := make([]any, 0, len(seq)-d+len(items))
	next = append(next, seq[:s]...)
	next = append(next, items...)
	next = append(next, seq[s+d:]...)

	args := make([]any, 0, 2+len(items))
	args = append(args, start, deleteCount)
	args = append(args, items...)
	if err := n.replaceSequence("splice", seq, next, args); err != nil {
		return nil, err
	}
	return removed, nil
}

// Sort orders the sequence by the canonical string form of each element,
// stably. There is no comparator argument: a comparison function could not
// be captured in a change record, and replay must reproduce the same order
// from the record alone.
func (n *Node) Sort() error {
	seq, err := n.sequenceTarget("sort")
	if err != nil {
		return err
	}
	return n.replaceSequence("sort", seq, sortByCanonicalKey(seq), nil)
}

// Reverse reverses the sequence in place.
func (n *Node) Reverse() error {
	seq, err := n.sequenceTarget("reverse")
	if err != nil {
		return err
	}

	next := slices.Clone(seq)
	slices.Reverse(next)
	return n.replaceSequence("reverse", seq, next, nil)
}

// Fill writes v into every element of [start, end), with both bounds
// clamping like Splice.
func (n *Node) Fill(v any, start, end int) error {
	if err := validateValue(v, n.rendered); err != nil {
		return err
	}
	seq, err := n.sequenceTarget("fill")
	if err != nil {
		return err
	}
	s := normIndex(start, len(seq))
	e := normIndex(end, len(seq))

	next := slices.Clone(seq)
	for i := s; i < e; i++ {
		next[i] = v
	}
	return n.replaceSequence("fill", seq, next, []any{v, start, end})
}

// CopyWithin copies [start, end) over the elements beginning at target,
// truncating at the sequence end. Bounds clamp like Splice; overlapping
// ranges behave as one atomic move.
func (n *Node) CopyWithin(target, start, end int) error {
	seq, err := n.sequenceTarget("copyWithin")
	if err != nil {
		return err
	}
	t := normIndex(target, len(seq))
	s := normIndex(start, len(seq))
	e := normIndex(end, len(seq))

	count := e - s
	if count > len(seq)-t {
		count = len(seq) - t
	}
	next := slices.Clone(seq)
	if count > 0 {
		// Reading from the original keeps overlapping ranges coherent.
		copy(next[t:t+count], seq[s:s+count])
	}
	return n.replaceSequence("copyWithin", seq, next, []any{target, start, end})
}

// mapTarget resolves this path to the map it must address.
func (n *Node) mapTarget(op string) (map[string]any, error) {
	v, ok := n.store.resolve(n.segments)
	if !ok {
		return nil, newOpError(op, n.rendered, ErrBadPath)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, newOpError(op, n.rendered, ErrNotAMap)
	}
	return m, nil
}

// sequenceTarget resolves this path to the sequence it must address.
func (n *Node) sequenceTarget(op string) ([]any, error) {
	v, ok := n.store.resolve(n.segments)
	if !ok {
		return nil, newOpError(op, n.rendered, ErrBadPath)
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, newOpError(op, n.rendered, ErrNotASequence)
	}
	return seq, nil
}

// replaceSequence installs next in this path's parent slot and commits the
// mutator record. The prior slice is untouched by construction, so rollback
// is restoring it to the slot, which also restores its identity for
// observers.
func (n *Node) replaceSequence(op string, prior, next []any, args []any) error {
	if err := n.writeSlot(op, next); err != nil {
		return err
	}
	rollback := func() { _ = n.writeSlot(op, prior) }
	return n.store.commit(newArrayChange(n.rendered, op, args), rollback)
}

// writeSlot writes v into the parent container slot this path names.
func (n *Node) writeSlot(op string, v any) error {
	if len(n.segments) == 0 {
		// The root is always a map and never replaced wholesale.
		return newOpError(op, n.rendered, ErrBadPath)
	}
	parent, ok := n.store.resolve(n.segments[:len(n.segments)-1])
	if !ok {
		return newOpError(op, n.rendered, ErrBadPath)
	}
	last := n.segments[len(n.segments)-1]
	switch p := parent.(type) {
	case map[string]any:
		p[last] = v
	case []any:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(p) {
			return newOpError(op, n.rendered, ErrBadPath)
		}
		p[i] = v
	default:
		return newOpError(op, n.rendered, ErrBadPath)
	}
	return nil
}

// normIndex resolves a possibly-negative relative index against length,
// clamping to [0, length].
func normIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

// canonicalSortKey renders an element for default sort ordering. Validated
// tree values always marshal; the fallback covers values a test might sneak
// in through a raw snapshot.
func canonicalSortKey(v any) string {
	b, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// sortByCanonicalKey sorts elements with their keys so the pairing survives
// the swaps the sorter performs.
func sortByCanonicalKey(seq []any) []any {
	type keyed struct {
		key  string
		elem any
	}
	pairs := make([]keyed, len(seq))
	for i, elem := range seq {
		pairs[i] = keyed{key: canonicalSortKey(elem), elem: elem}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	next := make([]any, len(seq))
	for i, p := range pairs {
		next[i] = p.elem
	}
	return next
}
