package arbor

import (
	"fmt"
	"strconv"
)

// ApplyChanges replays a change batch as one transaction. The records go
// through the same write path as direct mutation, so they validate, are
// re-recorded, and notify observers exactly as if the mutations had been
// made by hand: replaying a batch against an equal starting tree yields an
// equal final tree and an equivalent outgoing batch.
//
// Property records resolve their path, creating empty intermediate maps for
// absent segments; an intermediate that exists but is not a container is an
// error. Array records whose target is not a sequence, or whose method is
// unknown, are skipped silently, mirroring how the recording side declines
// to intercept what it does not understand.
func (s *Store) ApplyChanges(batch []Change) error {
	return s.Apply(func(*Node) error {
		for i, ch := range batch {
			if err := s.applyChange(ch); err != nil {
				return fmt.Errorf("apply change %d (%s): %w", i, ch.String(), err)
			}
		}
		return nil
	})
}

func (s *Store) applyChange(ch Change) error {
	switch ch.Type {
	case ChangeProperty:
		return s.applyProperty(ch)
	case ChangeArray:
		return s.applyArray(ch)
	default:
		return fmt.Errorf("unknown change type %q", ch.Type)
	}
}

func (s *Store) applyProperty(ch Change) error {
	if ch.Path == "" {
		return newOpError("replay", ch.Path, ErrBadPath)
	}
	segments := splitPath(ch.Path)
	parentSegs := segments[:len(segments)-1]
	last := segments[len(segments)-1]

	if err := s.ensureParents(parentSegs); err != nil {
		return err
	}

	parent := s.nodeAt(parentSegs)
	switch parent.Value().(type) {
	case map[string]any:
		if ch.Deleted {
			return parent.Delete(last)
		}
		return parent.Set(last, ch.Value)
	case []any:
		i, err := strconv.Atoi(last)
		if err != nil || ch.Deleted {
			// Sequences have no holes; a recorded element deletion cannot be
			// honored here, and the final segment must be an index.
			return newOpError("replay", ch.Path, ErrBadPath)
		}
		return parent.SetAt(i, ch.Value)
	default:
		return newOpError("replay", ch.Path, ErrBadPath)
	}
}

// ensureParents walks the parent segments, creating empty maps where a map
// key is absent. Each creation is a real Set, so it lands in the batch like
// any other write. Absent sequence elements cannot be created.
func (s *Store) ensureParents(segments []string) error {
	for i := range segments {
		if _, ok := s.resolve(segments[:i+1]); ok {
			continue
		}
		holder, ok := s.resolve(segments[:i])
		if !ok {
			return newOpError("replay", joinPath(segments[:i+1]), ErrBadPath)
		}
		if _, isMap := holder.(map[string]any); !isMap {
			return newOpError("replay", joinPath(segments[:i+1]), ErrBadPath)
		}
		if err := s.nodeAt(segments[:i]).Set(segments[i], map[string]any{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyArray(ch Change) error {
	node := s.nodeAt(splitPath(ch.Path))
	if _, ok := node.Value().([]any); !ok {
		s.log.Debug("replay: skipping array record, target is not a sequence",
			"path", ch.Path,
			"method", ch.Method,
		)
		return nil
	}

	args := ch.Args
	switch ch.Method {
	case "push":
		_, err := node.Push(args...)
		return err
	case "pop":
		_, err := node.Pop()
		return err
	case "shift":
		_, err := node.Shift()
		return err
	case "unshift":
		_, err := node.Unshift(args...)
		return err
	case "splice":
		if len(args) < 2 {
			return newOpError("replay", ch.Path, fmt.Errorf("splice needs start and deleteCount: %w", ErrBadPath))
		}
		start, ok1 := coerceInt(args[0])
		del, ok2 := coerceInt(args[1])
		if !ok1 || !ok2 {
			return newOpError("replay", ch.Path, fmt.Errorf("splice bounds must be integers: %w", ErrBadPath))
		}
		_, err := node.Splice(start, del, args[2:]...)
		return err
	case "sort":
		return node.Sort()
	case "reverse":
		return node.Reverse()
	case "fill":
		if len(args) < 3 {
			return newOpError("replay", ch.Path, fmt.Errorf("fill needs value, start, end: %w", ErrBadPath))
		}
		start, ok1 := coerceInt(args[1])
		end, ok2 := coerceInt(args[2])
		if !ok1 || !ok2 {
			return newOpError("replay", ch.Path, fmt.Errorf("fill bounds must be integers: %w", ErrBadPath))
		}
		return node.Fill(args[0], start, end)
	case "copyWithin":
		if len(args) < 3 {
			return newOpError("replay", ch.Path, fmt.Errorf("copyWithin needs target, start, end: %w", ErrBadPath))
		}
		target, ok1 := coerceInt(args[0])
		start, ok2 := coerceInt(args[1])
		end, ok3 := coerceInt(args[2])
		if !ok1 || !ok2 || !ok3 {
			return newOpError("replay", ch.Path, fmt.Errorf("copyWithin bounds must be integers: %w", ErrBadPath))
		}
		return node.CopyWithin(target, start, end)
	default:
		s.log.Debug("replay: skipping unknown array method",
			"path", ch.Path,
			"method", ch.Method,
		)
		return nil
	}
}

// coerceInt accepts the integer renderings a record can arrive with:
// native ints from in-process batches, float64 from JSON decoding.
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
