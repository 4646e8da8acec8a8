package testutil

import (
	"strings"

	"github.com/kestrelo/arbor"
)

// PathSelector builds a selector that reads one dotted path and returns the
// value there. Sequence indices are decimal segments: "data.items.2.name".
//
// The selector records every step of the path, so an observer built from it
// depends on the whole chain, exactly like a handwritten Get sequence.
func PathSelector(path string) arbor.Selector {
	segments := strings.Split(path, ".")
	return func(t *arbor.Tracked) any {
		return t.Get(segments...)
	}
}

// LengthSelector builds a selector that reads the length of the sequence at
// a dotted path.
func LengthSelector(path string) arbor.Selector {
	segments := strings.Split(path, ".")
	return func(t *arbor.Tracked) any {
		return t.Get(segments...).Len()
	}
}
