package arbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinAndSplitPath(t *testing.T) {
	assert.Equal(t, "", joinPath(nil))
	assert.Equal(t, "users", joinPath([]string{"users"}))
	assert.Equal(t, "users.3.name", joinPath([]string{"users", "3", "name"}))

	assert.Nil(t, splitPath(""))
	assert.Equal(t, []string{"users"}, splitPath("users"))
	assert.Equal(t, []string{"users", "3", "name"}, splitPath("users.3.name"))
}

func TestChildPath(t *testing.T) {
	assert.Equal(t, "users", childPath("", "users"))
	assert.Equal(t, "users.name", childPath("users", "name"))
	assert.Equal(t, "items.0", childPath("items", indexSegment(0)))
}

func TestPathsOverlap(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"a", "a", true},
		{"a", "a.b", true},
		{"a.b", "a", true},
		{"a.b.c", "a", true},
		{"a", "b", false},
		{"a.b", "a.c", false},
		{"data.items", "data.label", false},
		// Purely lexical: "ab" is not under "a".
		{"ab", "a", false},
		{"a.bc", "a.b", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, pathsOverlap(tc.a, tc.b), "pathsOverlap(%q, %q)", tc.a, tc.b)
		assert.Equal(t, tc.want, pathsOverlap(tc.b, tc.a), "overlap is symmetric")
	}
}

func TestAnyOverlap(t *testing.T) {
	deps := map[string]struct{}{"user.name": {}, "items.length": {}}

	assert.True(t, anyOverlap(deps, map[string]struct{}{"user": {}}))
	assert.True(t, anyOverlap(deps, map[string]struct{}{"items.length": {}}))
	assert.False(t, anyOverlap(deps, map[string]struct{}{"user.email": {}, "config": {}}))
	assert.False(t, anyOverlap(nil, map[string]struct{}{"user": {}}))
	assert.False(t, anyOverlap(deps, nil))
}

func TestLeafPaths(t *testing.T) {
	paths := map[string]struct{}{
		"data":         {},
		"data.items":   {},
		"data.items.0": {},
		"data.label":   {},
		"other":        {},
	}

	leaves := leafPaths(paths)
	assert.Equal(t, map[string]struct{}{
		"data.items.0": {},
		"data.label":   {},
		"other":        {},
	}, leaves)

	// Already-reduced sets pass through unchanged.
	assert.Equal(t, leaves, leafPaths(leaves))

	single := map[string]struct{}{"a": {}}
	assert.Equal(t, single, leafPaths(single))
}

func TestSortedPaths(t *testing.T) {
	paths := map[string]struct{}{"b": {}, "a.c": {}, "a": {}}
	assert.Equal(t, []string{"a", "a.c", "b"}, sortedPaths(paths))
}
