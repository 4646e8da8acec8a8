package arbor

import "reflect"

// containerID returns a pointer-sized identity for a container: the map
// header for maps, the backing-array address for slices. Two interface
// values with the same identity are views of the same storage. Not defined
// for non-containers.
func containerID(v any) (uintptr, bool) {
	switch v.(type) {
	case map[string]any, []any:
		return reflect.ValueOf(v).Pointer(), true
	default:
		return 0, false
	}
}

// shallowEqual compares two computed values the way observers decide whether
// to fire: containers by identity, everything else by ==.
//
// Maps compare by header pointer. Slices compare by backing-array pointer
// plus length, because every sequence mutation here rebuilds the slice and
// writes it back into its parent, so an untouched sequence keeps both. Two
// zero-length slices can share a backing address (Go allocates nothing for
// them), which makes replacing an empty sequence with another empty sequence
// indistinguishable from no change; that is the documented behavior.
func shallowEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap || bIsMap {
		if !aIsMap || !bIsMap {
			return false
		}
		return reflect.ValueOf(am).Pointer() == reflect.ValueOf(bm).Pointer()
	}

	as, aIsSeq := a.([]any)
	bs, bIsSeq := b.([]any)
	if aIsSeq || bIsSeq {
		if !aIsSeq || !bIsSeq {
			return false
		}
		return len(as) == len(bs) &&
			reflect.ValueOf(as).Pointer() == reflect.ValueOf(bs).Pointer()
	}

	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}
