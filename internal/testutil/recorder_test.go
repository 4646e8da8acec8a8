package testutil

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelo/arbor"
)

func newStore(t *testing.T, initial map[string]any) *arbor.Store {
	t.Helper()
	store, err := arbor.New(initial,
		arbor.WithRevisionSource(&arbor.SequentialSource{}),
		arbor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return store
}

func TestRecorderCapturesInOrder(t *testing.T) {
	store := newStore(t, map[string]any{"n": 0})
	rec := NewRecorder()

	_, err := store.Subscribe(PathSelector("n"), rec.Callback())
	require.NoError(t, err)

	require.NoError(t, store.Root().Set("n", 1))
	require.NoError(t, store.Root().Set("n", 2))

	assert.Equal(t, 3, rec.Count())
	assert.Equal(t, []any{0, 1, 2}, rec.Values())
	assert.Equal(t, 2, rec.Last())
}

func TestRecorderFailNext(t *testing.T) {
	store := newStore(t, map[string]any{"n": 0})
	rec := NewRecorder()

	_, err := store.Subscribe(PathSelector("n"), rec.Callback())
	require.NoError(t, err)
	require.Equal(t, 1, rec.Count())

	boom := errors.New("boom")
	rec.FailNext(boom)

	err = store.Root().Set("n", 1)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.Count(), "failed invocation is not recorded")

	// The failure clears after one use.
	require.NoError(t, store.Root().Set("n", 2))
	assert.Equal(t, 2, rec.Last())
}

func TestRecorderReset(t *testing.T) {
	rec := NewRecorder()
	cb := rec.Callback()

	require.NoError(t, cb("a"))
	require.NoError(t, cb("b"))
	require.Equal(t, 2, rec.Count())

	rec.Reset()
	assert.Zero(t, rec.Count())
	assert.Nil(t, rec.Last())

	require.NoError(t, cb("c"))
	assert.Equal(t, []any{"c"}, rec.Values())
}

func TestBatchRecorderCapturesBatches(t *testing.T) {
	store := newStore(t, map[string]any{"user": map[string]any{}})
	rec := NewBatchRecorder()

	store.SubscribeToChanges(rec.Callback())

	err := store.Apply(func(root *arbor.Node) error {
		if err := root.Get("user").Set("name", "bob"); err != nil {
			return err
		}
		return root.Get("user").Set("age", 30)
	})
	require.NoError(t, err)

	require.Equal(t, 1, rec.Count(), "one batch per transaction")
	batch := rec.Batches()[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "user.name", batch[0].Path)
	assert.Equal(t, "user.age", batch[1].Path)
}

func TestBatchRecorderFailNext(t *testing.T) {
	store := newStore(t, map[string]any{"n": 0})
	rec := NewBatchRecorder()

	store.SubscribeToChanges(rec.Callback())

	boom := errors.New("boom")
	rec.FailNext(boom)

	err := store.Root().Set("n", 1)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, rec.Count())

	// Standalone writes roll back on delivery failure.
	assert.Equal(t, 0, store.Root().Get("n").Value())

	require.NoError(t, store.Root().Set("n", 2))
	require.Equal(t, 1, rec.Count())
}

func TestPathSelectorTracksWholeChain(t *testing.T) {
	store := newStore(t, map[string]any{
		"data": map[string]any{"items": []any{map[string]any{"name": "a"}}},
	})
	rec := NewRecorder()

	_, err := store.Subscribe(PathSelector("data.items.0.name"), rec.Callback())
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Last())

	// A write to an ancestor re-parents the chain and re-fires.
	require.NoError(t, store.Root().Get("data").Set("items", []any{map[string]any{"name": "b"}}))
	assert.Equal(t, "b", rec.Last())
	assert.Equal(t, 2, rec.Count())
}

func TestLengthSelectorFiresOnResize(t *testing.T) {
	store := newStore(t, map[string]any{"items": []any{"a"}})
	rec := NewRecorder()

	_, err := store.Subscribe(LengthSelector("items"), rec.Callback())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Last())

	_, err = store.Root().Get("items").Push("b")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Last())

	// An in-place overwrite keeps the length; the observer stays quiet.
	require.NoError(t, store.Root().Get("items").SetAt(0, "z"))
	assert.Equal(t, 2, rec.Count())
}
