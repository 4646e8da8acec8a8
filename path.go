package arbor

import (
	"sort"
	"strconv"
	"strings"
)

// Paths address positions in the tree as dot-joined segment strings, with
// sequence indices rendered in decimal: "users.3.name". Containment between
// two paths is purely lexical, which is why map keys may not contain the
// separator (enforced by the validator).

const pathSep = "."

func joinPath(segments []string) string {
	return strings.Join(segments, pathSep)
}

func childPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + pathSep + segment
}

func indexSegment(i int) string {
	return strconv.Itoa(i)
}

func containsSep(s string) bool {
	return strings.Contains(s, pathSep)
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, pathSep)
}

// pathsOverlap reports whether one path contains the other: equal, or one is
// the other extended by a dot-separated suffix. Overlap in either direction
// makes an observer affected; an ancestor write can replace the whole subtree
// under a dependency, and a descendant write changes a value the observer
// may have read through the ancestor.
func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	if strings.HasPrefix(a, b+pathSep) {
		return true
	}
	return strings.HasPrefix(b, a+pathSep)
}

// anyOverlap reports whether any dependency path overlaps any changed path.
func anyOverlap(deps map[string]struct{}, changed map[string]struct{}) bool {
	for d := range deps {
		for c := range changed {
			if pathsOverlap(d, c) {
				return true
			}
		}
	}
	return false
}

// leafPaths reduces a path set to its most specific members: every path that
// is not a strict dot-prefix of another member. Forced notification uses the
// reduced set so that an observer of "data.items" does not drag observers of
// the sibling "data.label" along just because "data" was also recorded on
// the way down. Sets here are per-selector dependency sets, small enough
// that the pairwise scan is fine.
func leafPaths(paths map[string]struct{}) map[string]struct{} {
	if len(paths) <= 1 {
		return paths
	}
	leaves := make(map[string]struct{}, len(paths))
	for p := range paths {
		prefix := false
		for q := range paths {
			if strings.HasPrefix(q, p+pathSep) {
				prefix = true
				break
			}
		}
		if !prefix {
			leaves[p] = struct{}{}
		}
	}
	return leaves
}

// sortedPaths renders a path set in deterministic order for logs and tests.
func sortedPaths(paths map[string]struct{}) []string {
	out := make([]string, 0, len(paths))
	for p := range paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
