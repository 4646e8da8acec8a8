package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Revision)
}

func TestOutputFormatter_JSONSuccessWithRevision(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.SuccessWithRevision(map[string]int{"n": 1}, "rev-3")
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "rev-3", resp.Revision)
}

func TestOutputFormatter_TextSuccessWithRevision(t *testing.T) {
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    outBuf,
		ErrWriter: errBuf,
		Verbose:   true,
	}

	err := formatter.SuccessWithRevision("done", "rev-3")
	require.NoError(t, err)

	assert.Contains(t, outBuf.String(), "done")
	assert.Contains(t, errBuf.String(), "revision: rev-3")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeReplay, "replay failed", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeReplay, resp.Error.Code)
	assert.Equal(t, "replay failed", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"path": "user.name", "op": "set"}
	err := formatter.Error(ErrCodeInvalid, "bad value", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNotFound, "state file missing", nil)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Error [E002]")
	assert.Contains(t, output, "state file missing")
}

func TestOutputFormatter_VerboseLogGating(t *testing.T) {
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "text", Writer: outBuf, ErrWriter: errBuf}
	quiet.VerboseLog("should not appear")
	assert.Empty(t, errBuf.String())

	verbose := &OutputFormatter{Format: "text", Writer: outBuf, ErrWriter: errBuf, Verbose: true}
	verbose.VerboseLog("frame %d applied", 3)
	assert.Contains(t, errBuf.String(), "frame 3 applied")
	assert.Empty(t, outBuf.String(), "verbose output stays off stdout")
}

func TestOutputFormatter_GetErrWriterFallsBack(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	assert.Same(t, any(buf), any(formatter.GetErrWriter()))

	errBuf := &bytes.Buffer{}
	formatter.ErrWriter = errBuf
	assert.Same(t, any(errBuf), any(formatter.GetErrWriter()))
}

func TestExitError_Message(t *testing.T) {
	err := NewExitError(ExitFailure, "validation failed")
	assert.Equal(t, "validation failed", err.Error())
	assert.Equal(t, ExitFailure, err.Code)
	assert.Nil(t, err.Unwrap())
}

func TestExitError_Wrapped(t *testing.T) {
	cause := errors.New("file corrupted")
	err := WrapExitError(ExitCommandError, "parse journal", cause)

	assert.Equal(t, "parse journal: file corrupted", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "x")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))

	// ExitErrors are recognized through wrapping.
	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "inner"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))

	// Anything else defaults to failure.
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
