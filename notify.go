package arbor

import (
	"slices"

	"github.com/google/uuid"
)

// observer is one Subscribe registration: the selector, the callback, the
// dependency paths recorded by the latest evaluation, and the last computed
// value for change detection. The id only exists for log correlation.
type observer struct {
	id      string
	sel     Selector
	cb      Callback
	deps    map[string]struct{}
	last    any
	removed bool
}

// changeSub is one SubscribeToChanges registration. Change subscribers get
// every batch; there is no dependency filtering on this list.
type changeSub struct {
	id      string
	cb      ChangeCallback
	removed bool
}

// pendingRound holds the paths of notifications that arrived while a round
// was already running. Only the latest arrival is kept: the re-evaluation a
// round performs reads current state, so earlier pending sets would be
// re-derived from the same data anyway.
type pendingRound struct {
	paths map[string]struct{}
	force bool
}

// Subscribe registers an observer. The selector runs once immediately to
// learn its dependencies, and the callback fires synchronously with that
// initial value; if the callback errors, nothing is registered and the
// error is returned.
func (s *Store) Subscribe(sel Selector, cb Callback) (Unsubscribe, error) {
	value, deps := s.evalSelector(sel)

	o := &observer{
		id:   uuid.Must(uuid.NewV7()).String(),
		sel:  sel,
		cb:   cb,
		deps: deps,
		last: value,
	}

	s.fires++
	if err := cb(value); err != nil {
		s.log.Warn("initial observer callback failed, not registering",
			"observer", o.id,
			"error", err,
		)
		return nil, err
	}

	s.observers = append(s.observers, o)
	s.log.Debug("observer registered",
		"observer", o.id,
		"deps", sortedPaths(deps),
	)

	return func() { s.removeObserver(o) }, nil
}

func (s *Store) removeObserver(o *observer) {
	if o.removed {
		return
	}
	o.removed = true
	s.observers = slices.DeleteFunc(s.observers, func(x *observer) bool { return x == o })
}

// SubscribeToChanges registers a change-log subscriber that receives every
// committed batch in commit order.
func (s *Store) SubscribeToChanges(cb ChangeCallback) Unsubscribe {
	sub := &changeSub{
		id: uuid.Must(uuid.NewV7()).String(),
		cb: cb,
	}
	s.changeSubs = append(s.changeSubs, sub)
	return func() { s.removeChangeSub(sub) }
}

func (s *Store) removeChangeSub(sub *changeSub) {
	if sub.removed {
		return
	}
	sub.removed = true
	s.changeSubs = slices.DeleteFunc(s.changeSubs, func(x *changeSub) bool { return x == sub })
}

// Trigger re-evaluates the selector to learn which paths it reads, then
// forces a notification round for those paths: affected observers fire even
// if their value is unchanged. A selector that reads nothing triggers
// nothing.
func (s *Store) Trigger(sel Selector) error {
	_, paths := s.evalSelector(sel)
	if len(paths) == 0 {
		return nil
	}
	return s.notify(leafPaths(paths), true)
}

// evalSelector runs a selector against the current tree with a fresh
// tracker. Returning the Tracked view itself is allowed; it unwraps to its
// raw value.
func (s *Store) evalSelector(sel Selector) (any, map[string]struct{}) {
	tr := newReadTracker()
	result := sel(newTracked(s.state, tr))
	if t, ok := result.(*Tracked); ok {
		result = t.Value()
	}
	return result, tr.paths
}

// notify runs notification rounds for the changed paths. Re-entrant calls
// (a callback wrote during a round) park their paths in the pending slot
// and return; the running round drains the slot when it finishes, so
// cascades iterate instead of recursing. A callback error aborts the round,
// drops anything pending, and propagates to whoever committed the write.
func (s *Store) notify(changed map[string]struct{}, force bool) error {
	if s.notifying {
		s.pending = &pendingRound{paths: changed, force: force}
		return nil
	}

	s.notifying = true
	defer func() { s.notifying = false }()

	cur := &pendingRound{paths: changed, force: force}
	for cur != nil {
		if err := s.runRound(cur.paths, cur.force); err != nil {
			s.pending = nil
			return err
		}
		cur = s.pending
		s.pending = nil
	}
	return nil
}

// runRound walks the observers registered at round start, in insertion
// order. An affected observer re-evaluates through a fresh tracker, so its
// dependency set always reflects the branch the selector took against the
// new state, then its callback fires if the value changed or the round is
// forced.
func (s *Store) runRound(changed map[string]struct{}, force bool) error {
	s.rounds++
	s.log.Debug("notification round",
		"paths", sortedPaths(changed),
		"force", force,
	)

	snapshot := slices.Clone(s.observers)
	for _, o := range snapshot {
		if o.removed {
			continue
		}

		deps := o.deps
		if force {
			// A forced round targets exactly what its selector read; the
			// incidental ancestor paths in an observer's dependency set must
			// not count, or forcing "data.items" would also fire an observer
			// of the sibling "data.label" through their shared "data" step.
			deps = leafPaths(deps)
		}
		if !anyOverlap(deps, changed) {
			continue
		}

		value, newDeps := s.evalSelector(o.sel)
		o.deps = newDeps
		unchanged := shallowEqual(o.last, value)
		o.last = value

		if unchanged && !force {
			continue
		}
		s.fires++
		if err := o.cb(value); err != nil {
			s.log.Warn("observer callback failed",
				"observer", o.id,
				"error", err,
			)
			return err
		}
	}
	return nil
}

// dispatchChanges delivers a committed batch to every change-log
// subscriber, in registration order. The first error stops delivery and
// propagates to the committer.
func (s *Store) dispatchChanges(batch []Change) error {
	if len(s.changeSubs) == 0 {
		return nil
	}
	snapshot := slices.Clone(s.changeSubs)
	for _, sub := range snapshot {
		if sub.removed {
			continue
		}
		if err := sub.cb(batch); err != nil {
			s.log.Warn("change subscriber failed",
				"subscriber", sub.id,
				"error", err,
			)
			return err
		}
	}
	return nil
}
