package arbor

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// opSpec is one randomized mutation against the standard two-surface tree
// ({"props": {...}, "items": [...]}). Kinds cycle through every write
// operation the store records.
type opSpec struct {
	kind uint8
	key  string
	sval string
	ival int64
	a    int
	b    int
}

var genOpSpec = gopter.CombineGens(
	gen.UInt8(),
	gen.Identifier(),
	gen.AlphaString(),
	gen.Int64Range(0, 999),
	gen.IntRange(-6, 8),
	gen.IntRange(-6, 8),
).Map(func(vals []interface{}) opSpec {
	return opSpec{
		kind: vals[0].(uint8),
		key:  vals[1].(string),
		sval: vals[2].(string),
		ival: vals[3].(int64),
		a:    vals[4].(int),
		b:    vals[5].(int),
	}
})

func applyOpSpec(s *Store, op opSpec) error {
	props := s.Root().Get("props")
	items := s.Root().Get("items")
	switch op.kind % 9 {
	case 0:
		return props.Set(op.key, op.ival)
	case 1:
		return props.Set(op.key, op.sval)
	case 2:
		return props.Delete(op.key)
	case 3:
		_, err := items.Push(op.ival)
		return err
	case 4:
		_, err := items.Pop()
		return err
	case 5:
		_, err := items.Splice(op.a, op.b, op.ival)
		return err
	case 6:
		return items.Fill(op.ival, op.a, op.b)
	case 7:
		return items.CopyWithin(op.a, op.b, op.b+2)
	default:
		return items.Sort()
	}
}

func emptyTwoSurfaceStore() (*Store, error) {
	return quietStore(map[string]any{
		"props": map[string]any{},
		"items": []any{},
	})
}

// Recording a mutation run and replaying the records, directly or after a
// JSON round trip, must converge on the same tree.
func TestRecordReplayConverges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("replayed records rebuild the tree", prop.ForAll(
		func(ops []opSpec) bool {
			source, err := emptyTwoSurfaceStore()
			if err != nil {
				return false
			}
			var flat []Change
			source.SubscribeToChanges(func(batch []Change) error {
				flat = append(flat, batch...)
				return nil
			})
			for _, op := range ops {
				if err := applyOpSpec(source, op); err != nil {
					return false
				}
			}

			direct, err := emptyTwoSurfaceStore()
			if err != nil {
				return false
			}
			if err := direct.ApplyChanges(flat); err != nil {
				return false
			}

			encoded, err := json.Marshal(flat)
			if err != nil {
				return false
			}
			var decoded []Change
			if err := json.Unmarshal(encoded, &decoded); err != nil {
				return false
			}
			wire, err := emptyTwoSurfaceStore()
			if err != nil {
				return false
			}
			if err := wire.ApplyChanges(decoded); err != nil {
				return false
			}

			want := MustSnapshotHash(source.Snapshot())
			return MustSnapshotHash(direct.Snapshot()) == want &&
				MustSnapshotHash(wire.Snapshot()) == want
		},
		gen.SliceOf(genOpSpec),
	))

	properties.TestingRun(t)
}

// The canonical rendering of a tree is stable across repeated marshals and
// across an encoding/json round trip that retypes every number.
func TestCanonicalDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical form survives retyping", prop.ForAll(
		func(ops []opSpec) bool {
			s, err := emptyTwoSurfaceStore()
			if err != nil {
				return false
			}
			for _, op := range ops {
				if err := applyOpSpec(s, op); err != nil {
					return false
				}
			}
			snap := s.Snapshot()

			first, err := MarshalCanonical(snap)
			if err != nil {
				return false
			}
			second, err := MarshalCanonical(snap)
			if err != nil {
				return false
			}
			if !bytes.Equal(first, second) {
				return false
			}

			plain, err := json.Marshal(snap)
			if err != nil {
				return false
			}
			var retyped map[string]any
			if err := json.Unmarshal(plain, &retyped); err != nil {
				return false
			}
			third, err := MarshalCanonical(retyped)
			if err != nil {
				return false
			}
			return bytes.Equal(first, third)
		},
		gen.SliceOf(genOpSpec),
	))

	properties.TestingRun(t)
}

var genSmallPath = gen.SliceOfN(3, gen.OneConstOf("a", "b", "ab")).Map(func(segs []string) string {
	return joinPath(segs)
})

func TestPathAlgebraProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("overlap is symmetric", prop.ForAll(
		func(p, q string) bool {
			return pathsOverlap(p, q) == pathsOverlap(q, p)
		},
		genSmallPath, genSmallPath,
	))

	properties.Property("split and join round-trip", prop.ForAll(
		func(p string) bool {
			return joinPath(splitPath(p)) == p
		},
		genSmallPath,
	))

	properties.Property("leaf reduction keeps exactly the deepest paths", prop.ForAll(
		func(raw []string) bool {
			set := make(map[string]struct{}, len(raw))
			for _, p := range raw {
				set[p] = struct{}{}
			}
			leaves := leafPaths(set)
			for leaf := range leaves {
				if _, ok := set[leaf]; !ok {
					return false
				}
				for other := range leaves {
					if other != leaf && pathsOverlap(leaf, other) {
						return false
					}
				}
			}
			// Every dropped path must be an ancestor of some survivor.
			for p := range set {
				if _, kept := leaves[p]; kept {
					continue
				}
				covered := false
				for leaf := range leaves {
					if pathsOverlap(p, leaf) {
						covered = true
						break
					}
				}
				if !covered {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genSmallPath),
	))

	properties.TestingRun(t)
}
