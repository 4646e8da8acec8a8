package arbor

import (
	"encoding/json"
	"fmt"
)

// ChangeType distinguishes the two shapes a change record can take.
type ChangeType string

const (
	// ChangeProperty records a value written to (or deleted from) a path.
	ChangeProperty ChangeType = "property"

	// ChangeArray records a sequence mutator applied at a path.
	ChangeArray ChangeType = "array"
)

// Change is one intercepted mutation. Property records carry the new value
// (or a deletion marker); array records carry the mutator name and its
// arguments. A batch of records replayed through Store.ApplyChanges against
// an equal starting tree reproduces the same final tree.
type Change struct {
	// Type selects which fields below are meaningful.
	Type ChangeType

	// Path is the dotted path of the written property, or of the mutated
	// sequence for array records.
	Path string

	// Value is the assigned value. Property records only; absent when
	// Deleted is set.
	Value any

	// Deleted marks a property removal. Property records only.
	Deleted bool

	// Method names the sequence mutator: push, pop, shift, unshift, splice,
	// sort, reverse, fill, copyWithin. Array records only.
	Method string

	// Args are the mutator arguments as passed. Array records only.
	Args []any
}

func newPropertyChange(path string, value any) Change {
	return Change{Type: ChangeProperty, Path: path, Value: value}
}

func newDeleteChange(path string) Change {
	return Change{Type: ChangeProperty, Path: path, Deleted: true}
}

func newArrayChange(path, method string, args []any) Change {
	return Change{Type: ChangeArray, Path: path, Method: method, Args: args}
}

// String renders a compact form for logs.
func (c Change) String() string {
	switch {
	case c.Type == ChangeArray:
		return fmt.Sprintf("array(%s.%s, %d args)", c.Path, c.Method, len(c.Args))
	case c.Deleted:
		return fmt.Sprintf("delete(%s)", c.Path)
	default:
		return fmt.Sprintf("set(%s)", c.Path)
	}
}

// changeJSON is the wire shape. Value is raw so that an explicit null
// survives the round trip while a deletion omits the field entirely.
type changeJSON struct {
	Type    ChangeType      `json:"type"`
	Path    string          `json:"path"`
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
	Method  string          `json:"method,omitempty"`
	Args    []any           `json:"args,omitempty"`
}

// MarshalJSON emits only the fields meaningful for the record's type.
func (c Change) MarshalJSON() ([]byte, error) {
	wire := changeJSON{Type: c.Type, Path: c.Path}
	switch c.Type {
	case ChangeProperty:
		if c.Deleted {
			wire.Deleted = true
		} else {
			raw, err := json.Marshal(c.Value)
			if err != nil {
				return nil, fmt.Errorf("marshal change value at %q: %w", c.Path, err)
			}
			wire.Value = raw
		}
	case ChangeArray:
		wire.Method = c.Method
		wire.Args = c.Args
	default:
		return nil, fmt.Errorf("unknown change type %q", c.Type)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON restores a record written by MarshalJSON. Numbers decode as
// float64 per encoding/json; replay coerces them where a mutator needs an
// integer.
func (c *Change) UnmarshalJSON(data []byte) error {
	var wire changeJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Type {
	case ChangeProperty, ChangeArray:
	default:
		return fmt.Errorf("unknown change type %q", wire.Type)
	}

	c.Type = wire.Type
	c.Path = wire.Path
	c.Deleted = wire.Deleted
	c.Method = wire.Method
	c.Args = wire.Args
	c.Value = nil
	if !wire.Deleted && len(wire.Value) > 0 {
		if err := json.Unmarshal(wire.Value, &c.Value); err != nil {
			return fmt.Errorf("unmarshal change value at %q: %w", wire.Path, err)
		}
	}
	return nil
}
