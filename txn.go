package arbor

// txnState accumulates the records and changed paths of one transaction.
type txnState struct {
	records []Change
	paths   map[string]struct{}
}

// Apply runs body inside a transaction: every write commits its record into
// one batch, and observers see a single notification round after body
// returns. A nested Apply joins the transaction already in progress; the
// flush happens once, at the outer level.
//
// The flush runs even when body returns an error or panics, so writes made
// before the failure are still announced; transactional writes are NOT
// rolled back on subscriber failure, unlike standalone writes. If both body
// and flush fail, the flush error is returned.
//
// A body that records no writes flushes nothing.
func (s *Store) Apply(body func(root *Node) error) (err error) {
	if s.txn != nil {
		return body(s.Root())
	}

	t := &txnState{paths: make(map[string]struct{})}
	s.txn = t
	defer func() {
		s.txn = nil
		if flushErr := s.flush(t); flushErr != nil {
			err = flushErr
		}
	}()

	return body(s.Root())
}

// flush commits the accumulated batch: one revision, one change-log
// dispatch, one notification round over the union of changed paths. A
// dispatch failure skips the notification round; the data stays committed
// either way.
func (s *Store) flush(t *txnState) error {
	if len(t.records) == 0 {
		return nil
	}

	s.revision = s.revSrc.Next()
	seq := s.clock.next()
	s.log.Debug("transaction commit",
		"seq", seq,
		"revision", s.revision,
		"changes", len(t.records),
		"paths", sortedPaths(t.paths),
	)

	if err := s.dispatchChanges(t.records); err != nil {
		return err
	}
	return s.notify(t.paths, false)
}
