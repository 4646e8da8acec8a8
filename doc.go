// Package arbor is an in-process reactive state container: a mutable tree
// of plain data (nested maps, sequences, and primitives) that tracks what
// observers read, intercepts what writers change, and notifies exactly the
// observers whose dependencies overlap the changed paths.
//
// Reads happen through two views. Selectors navigate a Tracked view whose
// every step is recorded; the recorded paths become the observer's
// dependency set and are refreshed on each re-evaluation. Imperative code
// navigates Node cursors, whose reads are never recorded and whose writes
// validate, apply, and commit one change record each.
//
// Writes either stand alone, notifying immediately and rolling back if any
// subscriber errors, or batch inside Store.Apply, which flushes one change
// batch and one notification round when the body finishes. Committed
// batches also reach change-log subscribers as []Change records that can be
// journaled and replayed through Store.ApplyChanges.
//
// A Store is single-owner: callbacks run synchronously on the writing
// goroutine and may re-enter the store, so there is no internal locking and
// no concurrent use. See Store for details.
package arbor
