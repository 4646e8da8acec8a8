package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kestrelo/arbor"
	"github.com/kestrelo/arbor/internal/journal"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
}

// watchEvent is the JSON line emitted for every batch applied while watching.
type watchEvent struct {
	Seq      int64    `json:"seq"`
	Revision string   `json:"revision"`
	Changes  int      `json:"changes"`
	Paths    []string `json:"paths"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <state-file> <journal-file>",
		Short: "Tail a change journal and apply new batches live",
		Long: `Watch loads a state document, replays the journal's existing frames,
then tails the journal file and applies each new frame as it is
appended. One line is printed per applied batch with the store's own
sequence number and revision.

A truncated journal is replayed from the start against a fresh store.
Watch runs until interrupted.

Examples:
  arbor watch state.json journal.jsonl
  arbor watch state.json journal.jsonl --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], args[1], cmd)
		},
	}

	return cmd
}

type watchState struct {
	store  *arbor.Store
	offset int64
}

func runWatch(opts *WatchOptions, statePath, journalPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ws, err := startWatchStore(opts, statePath, journalPath, formatter, cmd)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return outputCommandError(formatter, ErrCodeWatch, fmt.Sprintf("create filesystem watcher: %v", err))
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and log rotation replace
	// files, and a watch on the old inode would go quiet.
	dir := filepath.Dir(journalPath)
	if err := watcher.Add(dir); err != nil {
		return outputCommandError(formatter, ErrCodeWatch, fmt.Sprintf("watch %s: %v", dir, err))
	}

	formatter.VerboseLog("Watching %s (offset %d)", journalPath, ws.offset)

	absJournal, err := filepath.Abs(journalPath)
	if err != nil {
		absJournal = journalPath
	}

	for {
		select {
		case <-ctx.Done():
			formatter.VerboseLog("Watch interrupted; final seq=%d revision=%s", ws.store.Seq(), ws.store.Revision())
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				name = event.Name
			}
			if name != absJournal {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if err := ws.drain(opts, statePath, journalPath, formatter, cmd); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return outputCommandError(formatter, ErrCodeWatch, fmt.Sprintf("filesystem watcher: %v", err))
		}
	}
}

// startWatchStore builds a store from the state document, subscribes the
// batch printer, and replays whatever the journal already holds.
func startWatchStore(opts *WatchOptions, statePath, journalPath string, formatter *OutputFormatter, cmd *cobra.Command) (*watchState, error) {
	store, err := openStore(opts.RootOptions, statePath, cmd)
	if err != nil {
		return nil, err
	}

	// The printer reports the store's own view of each replayed batch, so
	// the seq and revision shown are the live store's, not the journal's.
	_ = store.SubscribeToChanges(batchPrinter(formatter, store))

	ws := &watchState{store: store}
	if err := ws.drain(opts, statePath, journalPath, formatter, cmd); err != nil {
		return nil, err
	}
	return ws, nil
}

// drain applies every complete frame appended since the last offset. A
// shrunken journal means truncation: the store is rebuilt from the state
// document and the journal replayed from the start.
func (ws *watchState) drain(opts *WatchOptions, statePath, journalPath string, formatter *OutputFormatter, cmd *cobra.Command) error {
	f, err := os.Open(journalPath)
	if os.IsNotExist(err) {
		return nil // journal not created yet
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return WrapExitError(ExitCommandError, "stat journal", err)
	}
	if info.Size() < ws.offset {
		formatter.VerboseLog("Journal truncated; replaying from start")
		fresh, err := startWatchStore(opts, statePath, journalPath, formatter, cmd)
		if err != nil {
			return err
		}
		*ws = *fresh
		return nil
	}

	if _, err := f.Seek(ws.offset, io.SeekStart); err != nil {
		return WrapExitError(ExitCommandError, "seek journal", err)
	}

	frames, consumed, err := journal.ScanFrames(f)
	if err != nil {
		return WrapExitError(ExitFailure, "parse journal", err)
	}
	for _, frame := range frames {
		if err := ws.store.ApplyChanges(frame.Changes); err != nil {
			_ = formatter.Error(ErrCodeReplay, fmt.Sprintf("frame seq %d: %v", frame.Seq, err), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("journal replay failed at seq %d", frame.Seq))
		}
	}
	ws.offset += consumed
	return nil
}

// batchPrinter returns a change callback that prints one line per batch.
// The callback runs inside the store's notification round, so the store's
// revision and seq already reflect the batch being printed.
func batchPrinter(formatter *OutputFormatter, store *arbor.Store) arbor.ChangeCallback {
	return func(batch []arbor.Change) error {
		paths := make([]string, 0, len(batch))
		for _, ch := range batch {
			paths = append(paths, ch.Path)
		}

		if formatter.Format == "json" {
			return json.NewEncoder(formatter.Writer).Encode(watchEvent{
				Seq:      store.Seq(),
				Revision: store.Revision(),
				Changes:  len(batch),
				Paths:    paths,
			})
		}

		fmt.Fprintf(formatter.Writer, "seq=%d revision=%s changes=%d paths=%s\n",
			store.Seq(), store.Revision(), len(batch), strings.Join(paths, ","))
		return nil
	}
}
