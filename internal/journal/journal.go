// Package journal reads and writes change-batch journals: one JSON object
// per line, each holding a committed batch with its commit identity.
//
// The format is an interchange format, not a database. It is append-only,
// diffable, and tail-able: a reader positioned after the last complete line
// picks up exactly the batches appended since, which is what the watch
// command does with fsnotify.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kestrelo/arbor"
)

// Frame is one committed batch on the wire.
type Frame struct {
	// Seq is the logical commit number the batch was stamped with.
	Seq int64 `json:"seq"`

	// Revision is the batch's revision token.
	Revision string `json:"revision"`

	// Changes are the batch's records, in commit order.
	Changes []arbor.Change `json:"changes"`
}

// Writer appends frames as JSON lines.
type Writer struct {
	enc *json.Encoder
}

// NewWriter wraps w. The caller keeps ownership of w and closes it.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Append writes one frame as a single line.
func (w *Writer) Append(f Frame) error {
	if err := w.enc.Encode(f); err != nil {
		return fmt.Errorf("append journal frame seq %d: %w", f.Seq, err)
	}
	return nil
}

// ScanFrames reads every complete frame from r and reports how many bytes
// were consumed. A trailing line without a newline is left unconsumed, so a
// caller tailing a growing file can seek to the returned offset and resume
// once the line is complete. Blank lines are skipped but counted as
// consumed.
func ScanFrames(r io.Reader) ([]Frame, int64, error) {
	br := bufio.NewReader(r)
	var (
		frames   []Frame
		consumed int64
	)
	for {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			// No trailing newline: the writer is mid-append, leave it.
			return frames, consumed, nil
		}
		if err != nil {
			return frames, consumed, fmt.Errorf("read journal line: %w", err)
		}

		consumed += int64(len(line))
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		var f Frame
		if err := json.Unmarshal([]byte(trimmed), &f); err != nil {
			return frames, consumed, fmt.Errorf("parse journal frame %d: %w", len(frames), err)
		}
		frames = append(frames, f)
	}
}

// ReadAll reads every complete frame, discarding the offset.
func ReadAll(r io.Reader) ([]Frame, error) {
	frames, _, err := ScanFrames(r)
	return frames, err
}
