package arbor

// Snapshot returns a deep copy of the current tree, detached from the live
// state: mutating the copy commits nothing and notifies nobody. Use it for
// serialization, diffing, and fingerprinting with SnapshotHash.
func (s *Store) Snapshot() map[string]any {
	return deepCopyMap(s.state)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopySeq(seq []any) []any {
	out := make([]any, len(seq))
	for i, v := range seq {
		out[i] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		return deepCopySeq(val)
	default:
		// Leaves are immutable value types; sharing them is safe.
		return val
	}
}
