package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeStateFile drops content into a temp file and returns its path.
func writeStateFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateValidJSON(t *testing.T) {
	path := writeStateFile(t, "state.json", `{"user": {"name": "bob"}, "items": [1, 2]}`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ State is serializable")
}

func TestValidateValidYAML(t *testing.T) {
	path := writeStateFile(t, "state.yaml", "user:\n  name: bob\nitems:\n  - 1\n  - 2\n")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ State is serializable")
}

func TestValidateValidJSONFormat(t *testing.T) {
	path := writeStateFile(t, "state.json", `{"n": 1}`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestValidateNonExistentFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/state.json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "read state file")
}

func TestValidateUnsupportedExtension(t *testing.T) {
	path := writeStateFile(t, "state.toml", `n = 1`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeBadFormat)
	assert.Contains(t, buf.String(), "unsupported state file extension")
}

func TestValidateMalformedJSON(t *testing.T) {
	path := writeStateFile(t, "state.json", `{"broken":`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeParse)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateNonSerializableValue(t *testing.T) {
	// An unquoted timestamp decodes to time.Time, which the data model
	// rejects.
	path := writeStateFile(t, "state.yaml", "created: 2024-01-15T10:00:00Z\n")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, ErrCodeInvalid)
	assert.Contains(t, output, "time.Time")
	assert.Contains(t, output, "path: created")
}

func TestValidateNonSerializableValueJSONFormat(t *testing.T) {
	path := writeStateFile(t, "state.yaml", "user:\n  created: 2024-01-15T10:00:00Z\n")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	jsonErr := json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, jsonErr)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "user.created")
}

func TestValidateEmptyDocument(t *testing.T) {
	// An empty mapping is a legal, if boring, state.
	path := writeStateFile(t, "state.json", `{}`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ State is serializable")
}

func TestValidateVerboseOutput(t *testing.T) {
	path := writeStateFile(t, "state.json", `{"a": 1, "b": 2}`)

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Verbose: true}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(stdoutBuf)
	cmd.SetErr(stderrBuf) // Verbose output goes to stderr
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)

	assert.Contains(t, stderrBuf.String(), "2 top-level key(s)")
	assert.Contains(t, stdoutBuf.String(), "✓ State is serializable")
}

func TestStateErrorFrom(t *testing.T) {
	se := stateErrorFrom(assert.AnError)
	assert.Equal(t, ErrCodeGeneric, se.Code)
	assert.Empty(t, se.Path)
}
