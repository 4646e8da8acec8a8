package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeNotFound   = "E002" // State or journal file not found
	ErrCodeParse      = "E003" // State document parse failure
	ErrCodeBadFormat  = "E004" // Unsupported file extension
	ErrCodeInvalid    = "E005" // State rejected by the serializable data model
	ErrCodeJournal    = "E006" // Journal parse failure
	ErrCodeReplay     = "E007" // Change batch rejected during replay
	ErrCodeWatch      = "E008" // Filesystem watch failure
)

// errBadExtension marks a state path whose extension names no known format.
var errBadExtension = errors.New("unsupported state file extension")

// LoadState reads a state document from path and decodes it into the
// container data model. The format is chosen by extension: .json for
// JSON, .yaml or .yml for YAML. The decoded document must be a map at
// the top level.
func LoadState(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state map[string]any
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("parse state file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("parse state file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w %q (want .json, .yaml, or .yml)", errBadExtension, ext)
	}

	return state, nil
}

// codeForLoadError maps a LoadState failure to its error code.
func codeForLoadError(err error) string {
	var pathErr *fs.PathError
	switch {
	case errors.As(err, &pathErr):
		return ErrCodeNotFound
	case errors.Is(err, errBadExtension):
		return ErrCodeBadFormat
	default:
		return ErrCodeParse
	}
}
