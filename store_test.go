package arbor

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore builds a store with deterministic revisions and quiet logs.
// Later options win, so tests can still override the revision source.
func newTestStore(t *testing.T, initial map[string]any, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithRevisionSource(&SequentialSource{}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	s, err := New(initial, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func TestNewDeepCopiesInitial(t *testing.T) {
	initial := map[string]any{
		"user":  map[string]any{"name": "bob"},
		"items": []any{1, 2},
	}
	s := newTestStore(t, initial)

	initial["user"].(map[string]any)["name"] = "mallory"
	initial["items"].([]any)[0] = 99

	snap := s.Snapshot()
	assert.Equal(t, "bob", snap["user"].(map[string]any)["name"])
	assert.Equal(t, 1, snap["items"].([]any)[0])
}

func TestNewNilInitialStartsEmpty(t *testing.T) {
	s := newTestStore(t, nil)

	assert.Equal(t, map[string]any{}, s.Snapshot())
	assert.Equal(t, "", s.Revision())
	assert.Equal(t, int64(0), s.Seq())
}

func TestNewRejectsInvalidInitial(t *testing.T) {
	_, err := New(map[string]any{"created": time.Now()})
	require.Error(t, err)
	assert.True(t, IsNonSerializable(err))
}

func TestFromJSON(t *testing.T) {
	s, err := FromJSON([]byte(`{"count": 3, "tags": ["a"]}`))
	require.NoError(t, err)

	assert.Equal(t, float64(3), s.Root().Get("count").Value())
	assert.Equal(t, "a", s.Root().Get("tags", "0").Value())
}

func TestFromJSONMalformed(t *testing.T) {
	_, err := FromJSON([]byte(`{"count":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse initial state")
}

func TestFromJSONTopLevelArray(t *testing.T) {
	_, err := FromJSON([]byte(`[1, 2]`))
	require.Error(t, err)
}

func TestFromYAML(t *testing.T) {
	s, err := FromYAML([]byte("count: 3\nname: bob\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Root().Get("count").Value(), "yaml.v3 keeps integers")
	assert.Equal(t, "bob", s.Root().Get("name").Value())
}

func TestFromYAMLRejectsTimestamps(t *testing.T) {
	_, err := FromYAML([]byte("created: 2024-01-15T10:00:00Z\n"))
	require.Error(t, err)
	assert.True(t, IsNonSerializable(err), "unquoted timestamps decode to time.Time")
}

func TestRevisionAndSeqAdvance(t *testing.T) {
	s := newTestStore(t, map[string]any{}, WithRevisionSource(NewFixedSource("r1", "r2")))

	require.NoError(t, s.Root().Set("a", 1))
	assert.Equal(t, "r1", s.Revision())
	assert.Equal(t, int64(1), s.Seq())

	require.NoError(t, s.Root().Set("b", 2))
	assert.Equal(t, "r2", s.Revision())
	assert.Equal(t, int64(2), s.Seq())
}

func TestDefaultRevisionSourceIsUUIDv7(t *testing.T) {
	s, err := New(nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	require.NoError(t, s.Root().Set("a", 1))

	parsed, err := uuid.Parse(s.Revision())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestOptionNilGuards(t *testing.T) {
	s, err := New(nil,
		WithLogger(nil),
		WithRevisionSource(nil),
		WithAccessorCacheSize(0),
	)
	require.NoError(t, err)
	require.NotNil(t, s.log)
	require.NotNil(t, s.revSrc)
	assert.Equal(t, defaultAccessorCacheSize, s.cacheSize)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newTestStore(t, map[string]any{"user": map[string]any{"name": "bob"}})

	snap := s.Snapshot()
	snap["user"].(map[string]any)["name"] = "mallory"

	assert.Equal(t, "bob", s.Root().Get("user", "name").Value())
}

func TestResolve(t *testing.T) {
	s := newTestStore(t, map[string]any{
		"a": map[string]any{"b": []any{10, true}},
	})

	v, ok := s.resolve(nil)
	assert.True(t, ok)
	assert.Equal(t, s.state, v)

	v, ok = s.resolve([]string{"a", "b", "0"})
	assert.True(t, ok)
	assert.Equal(t, 10, v)

	_, ok = s.resolve([]string{"a", "b", "2"})
	assert.False(t, ok, "index out of range")
	_, ok = s.resolve([]string{"a", "b", "x"})
	assert.False(t, ok, "non-numeric index")
	_, ok = s.resolve([]string{"a", "missing"})
	assert.False(t, ok)
	_, ok = s.resolve([]string{"a", "b", "0", "deeper"})
	assert.False(t, ok, "cannot descend through a leaf")
}

func TestNodeIdentityStableWhileContainerLives(t *testing.T) {
	s := newTestStore(t, map[string]any{
		"user": map[string]any{"name": "bob"},
	})

	first := s.Root().Get("user")
	second := s.Root().Get("user")
	assert.Same(t, first, second, "unreplaced container keeps its accessor")

	// Writing inside the map keeps the map's identity.
	require.NoError(t, first.Set("age", 30))
	assert.Same(t, first, s.Root().Get("user"))

	// Replacing the container invalidates the accessor.
	require.NoError(t, s.Root().Set("user", map[string]any{"name": "eve"}))
	fresh := s.Root().Get("user")
	assert.NotSame(t, first, fresh)
	assert.Same(t, fresh, s.Root().Get("user"))
}

func TestNodeIdentityAfterSequenceMutation(t *testing.T) {
	s := newTestStore(t, map[string]any{"items": []any{"a"}})

	before := s.Root().Get("items")
	_, err := before.Push("b")
	require.NoError(t, err)

	after := s.Root().Get("items")
	assert.NotSame(t, before, after, "mutators rebuild the slice, so identity changes")

	// The stale cursor still works; it re-resolves by path.
	assert.Equal(t, 2, before.Len())
}

func TestAccessorCacheEviction(t *testing.T) {
	s := newTestStore(t, map[string]any{
		"a": map[string]any{},
		"b": map[string]any{},
	}, WithAccessorCacheSize(1))

	nodeA := s.Root().Get("a")
	s.Root().Get("b")
	s.Root().Get("b")

	// A one-entry cache cannot hold both; "a" ages out and comes back fresh.
	assert.NotSame(t, nodeA, s.Root().Get("a"))
}

func TestStatsCounters(t *testing.T) {
	s := newTestStore(t, map[string]any{"n": 0})

	unsubObs, err := s.Subscribe(func(v *Tracked) any { return v.Get("n").Value() },
		func(any) error { return nil })
	require.NoError(t, err)
	unsubChanges := s.SubscribeToChanges(func([]Change) error { return nil })

	require.NoError(t, s.Root().Set("n", 1))
	require.NoError(t, s.Root().Set("n", 2))

	st := s.Stats()
	assert.Equal(t, 1, st.Observers)
	assert.Equal(t, 1, st.ChangeSubscribers)
	assert.Equal(t, int64(2), st.Commits)
	assert.Equal(t, int64(2), st.Rounds)
	assert.Equal(t, int64(3), st.CallbackFires, "initial fire plus two updates")

	unsubObs()
	unsubChanges()
	st = s.Stats()
	assert.Equal(t, 0, st.Observers)
	assert.Equal(t, 0, st.ChangeSubscribers)
}
