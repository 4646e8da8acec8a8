package arbor

import (
	"errors"
	"fmt"
)

// NonSerializableError reports a value that cannot live in the state tree.
//
// The tree holds plain data only: string-keyed maps, sequences, nil, booleans,
// strings, and numbers. Anything else is rejected before the write is applied,
// so a failed write leaves the tree untouched.
type NonSerializableError struct {
	// Type is the Go type label of the offending value, as %T renders it.
	Type string

	// Path is the dotted path where the value was found.
	Path string
}

// Error implements the error interface.
func (e *NonSerializableError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("non-serializable value of type %s", e.Type)
	}
	return fmt.Sprintf("non-serializable value of type %s at path %q", e.Type, e.Path)
}

// IsNonSerializable returns true if the error is a serializability rejection.
// Uses errors.As to handle wrapped errors.
func IsNonSerializable(err error) bool {
	var ne *NonSerializableError
	return errors.As(err, &ne)
}

// Sentinel causes for structural misuse of the accessor and replay surfaces.
// They are carried inside an OpError and matched with errors.Is.
var (
	// ErrNotAMap indicates a property operation on a target that is not a map.
	ErrNotAMap = errors.New("target is not a map")

	// ErrNotASequence indicates a sequence operation on a target that is not
	// a sequence.
	ErrNotASequence = errors.New("target is not a sequence")

	// ErrIndexOutOfRange indicates an index write outside the sequence bounds.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrBadPath indicates a replayed change record whose path cannot be
	// resolved against the current tree.
	ErrBadPath = errors.New("path cannot be resolved")

	// ErrBadKey indicates a map key that is empty or contains the path
	// separator.
	ErrBadKey = errors.New("key is empty or contains a dot")
)

// OpError reports structural misuse of an accessor operation: writing a
// property on a non-map, indexing past the end of a sequence, replaying a
// change record against a tree it no longer fits.
type OpError struct {
	// Op is the operation that failed, e.g. "set" or "splice".
	Op string

	// Path is the dotted path of the target.
	Path string

	// Err is the sentinel cause.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s at path %q: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes the sentinel cause to errors.Is.
func (e *OpError) Unwrap() error {
	return e.Err
}

func newOpError(op, path string, cause error) *OpError {
	return &OpError{Op: op, Path: path, Err: cause}
}
