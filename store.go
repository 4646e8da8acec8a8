package arbor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Selector navigates the tree through a tracking view and returns the value
// the observer cares about. Every Get, At, Has, and Len along the way is
// recorded; the recorded paths decide when the observer re-evaluates.
type Selector func(*Tracked) any

// Callback receives the selector's value when it changes (or unconditionally
// under Trigger). Returning an error aborts the notification round and, for
// a standalone write, rolls the write back.
type Callback func(value any) error

// ChangeCallback receives every committed change batch, unfiltered. The
// batch is shared; treat it as read-only.
type ChangeCallback func(batch []Change) error

// Unsubscribe removes a subscription. Safe to call more than once.
type Unsubscribe func()

// Store is a reactive state container: a mutable tree of plain data whose
// reads teach it what observers depend on and whose writes are intercepted,
// batched, and broadcast.
//
// A Store is NOT safe for concurrent use. The execution model is
// single-owner and synchronous: writes, notification rounds, and callbacks
// all run on the caller's goroutine, and callbacks may re-enter the store.
// An internal lock would deadlock on that re-entry, so there is none; wrap
// the store yourself if you need to share it, and keep callbacks on the
// owning goroutine.
type Store struct {
	state map[string]any
	log   *slog.Logger

	cache     *accessorCache
	cacheSize int

	revSrc   RevisionSource
	clock    commitClock
	revision string

	observers  []*observer
	changeSubs []*changeSub

	txn       *txnState
	notifying bool
	pending   *pendingRound

	rounds int64
	fires  int64
}

// commitClock numbers committed batches. Monotonic and never rewound, so a
// rolled-back standalone write leaves a gap rather than reusing a number.
type commitClock struct {
	n atomic.Int64
}

func (c *commitClock) next() int64 {
	return c.n.Add(1)
}

func (c *commitClock) current() int64 {
	return c.n.Load()
}

// New builds a store around a deep copy of initial, which must be
// serializable plain data. A nil initial starts empty.
func New(initial map[string]any, opts ...Option) (*Store, error) {
	if initial == nil {
		initial = map[string]any{}
	}
	if err := validateValue(initial, ""); err != nil {
		return nil, err
	}

	s := &Store{
		state:     deepCopyMap(initial),
		log:       slog.Default(),
		cacheSize: defaultAccessorCacheSize,
		revSrc:    UUIDv7Source{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = newAccessorCache(s.cacheSize)

	return s, nil
}

// FromJSON builds a store from a JSON object. Numbers arrive as float64 per
// encoding/json.
func FromJSON(data []byte, opts ...Option) (*Store, error) {
	var initial map[string]any
	if err := json.Unmarshal(data, &initial); err != nil {
		return nil, fmt.Errorf("parse initial state: %w", err)
	}
	return New(initial, opts...)
}

// FromYAML builds a store from a YAML mapping. Note that yaml.v3 decodes
// unquoted timestamps into time.Time, which the validator rejects; quote
// them to keep them strings.
func FromYAML(data []byte, opts ...Option) (*Store, error) {
	var initial map[string]any
	if err := yaml.Unmarshal(data, &initial); err != nil {
		return nil, fmt.Errorf("parse initial state: %w", err)
	}
	return New(initial, opts...)
}

// Root returns the cursor for the tree root.
func (s *Store) Root() *Node {
	return s.nodeAt(nil)
}

// Revision returns the token of the last committed batch, empty before the
// first commit.
func (s *Store) Revision() string {
	return s.revision
}

// Seq returns the logical number of the last committed batch.
func (s *Store) Seq() int64 {
	return s.clock.current()
}

// Stats reports introspection counters.
type Stats struct {
	// Observers is the number of live subscriptions.
	Observers int

	// ChangeSubscribers is the number of live change-log subscriptions.
	ChangeSubscribers int

	// Commits is the high-water commit sequence number. Rolled-back
	// standalone writes consume a number, so this can exceed the count of
	// batches that stuck.
	Commits int64

	// Rounds is the number of notification rounds run.
	Rounds int64

	// CallbackFires is the number of observer callbacks invoked.
	CallbackFires int64
}

// Stats returns current introspection counters.
func (s *Store) Stats() Stats {
	live := 0
	for _, o := range s.observers {
		if !o.removed {
			live++
		}
	}
	subs := 0
	for _, c := range s.changeSubs {
		if !c.removed {
			subs++
		}
	}
	return Stats{
		Observers:         live,
		ChangeSubscribers: subs,
		Commits:           s.clock.current(),
		Rounds:            s.rounds,
		CallbackFires:     s.fires,
	}
}

// resolve walks the tree along segments. The second result is false when the
// path does not resolve to a value.
func (s *Store) resolve(segments []string) (any, bool) {
	var cur any = s.state
	for _, seg := range segments {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// nodeAt returns the cursor for a path, reusing the cached one while the
// container living there keeps its identity.
func (s *Store) nodeAt(segments []string) *Node {
	rendered := joinPath(segments)
	if v, ok := s.resolve(segments); ok {
		if id, isContainer := containerID(v); isContainer {
			if node, hit := s.cache.lookup(rendered, id); hit {
				return node
			}
			node := &Node{store: s, segments: segments, rendered: rendered}
			s.cache.store(rendered, id, node)
			return node
		}
	}
	return &Node{store: s, segments: segments, rendered: rendered}
}

// commit is the single exit point for every mutation. Inside a transaction
// the record accumulates; standalone it becomes a one-record batch that is
// dispatched and notified immediately, and rolled back if any subscriber
// errors. Rollback restores the data, not the commit numbering: the clock
// never rewinds, so a failed standalone write leaves a sequence gap.
func (s *Store) commit(ch Change, rollback func()) error {
	if s.txn != nil {
		s.txn.records = append(s.txn.records, ch)
		s.txn.paths[ch.Path] = struct{}{}
		return nil
	}

	prevRevision := s.revision
	s.revision = s.revSrc.Next()
	seq := s.clock.next()
	s.log.Debug("commit",
		"seq", seq,
		"revision", s.revision,
		"change", ch.String(),
	)

	batch := []Change{ch}
	if err := s.dispatchChanges(batch); err != nil {
		if rollback != nil {
			rollback()
		}
		s.revision = prevRevision
		return err
	}
	if err := s.notify(map[string]struct{}{ch.Path: {}}, false); err != nil {
		if rollback != nil {
			rollback()
		}
		s.revision = prevRevision
		return err
	}
	return nil
}
