package arbor

import "fmt"

// validateValue walks v and rejects anything outside the plain-data domain:
// string-keyed maps, sequences, nil, booleans, strings, and numbers. The walk
// runs before a write is applied, so rejection leaves the tree untouched.
//
// The tree stores exactly map[string]any and []any so that snapshots, replay,
// and identity comparison stay trivial. Everything else is rejected by its
// concrete type: functions, channels, time.Time, compiled regexps, sync.Map,
// typed containers like map[string]int or []string, structs, and pointers.
// Callers convert typed data at the boundary.
func validateValue(v any, path string) error {
	return validateWalk(v, path, make(map[uintptr]bool))
}

// seen holds the container identities on the current descent; revisiting one
// means the value references itself and could never be rendered as a tree.
// Sharing a container across sibling paths is legal, so identities are
// removed again on the way back up.
func validateWalk(v any, path string, seen map[uintptr]bool) error {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil

	case map[string]any:
		id, _ := containerID(val)
		if seen[id] {
			return &NonSerializableError{Type: fmt.Sprintf("cyclic %T", v), Path: path}
		}
		seen[id] = true
		defer delete(seen, id)
		for key, elem := range val {
			if err := validateKey(key, path); err != nil {
				return err
			}
			if err := validateWalk(elem, childPath(path, key), seen); err != nil {
				return err
			}
		}
		return nil

	case []any:
		if len(val) > 0 {
			id, _ := containerID(val)
			if seen[id] {
				return &NonSerializableError{Type: fmt.Sprintf("cyclic %T", v), Path: path}
			}
			seen[id] = true
			defer delete(seen, id)
		}
		for i, elem := range val {
			if err := validateWalk(elem, childPath(path, indexSegment(i)), seen); err != nil {
				return err
			}
		}
		return nil

	default:
		return &NonSerializableError{Type: fmt.Sprintf("%T", v), Path: path}
	}
}

// validateKey enforces the key constraints that keep path containment sound:
// keys are non-empty and never contain the separator.
func validateKey(key, path string) error {
	if key == "" || containsSep(key) {
		return newOpError("validate", path, fmt.Errorf("key %q: %w", key, ErrBadKey))
	}
	return nil
}
