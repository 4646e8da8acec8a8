package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelo/arbor"
	"github.com/kestrelo/arbor/internal/journal"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Hash bool // include the canonical snapshot hash in the output
}

// ApplyResult holds the outcome of replaying a journal against a state document.
type ApplyResult struct {
	Frames   int             `json:"frames"`
	Changes  int             `json:"changes"`
	Seq      int64           `json:"seq"`
	Revision string          `json:"revision"`
	Hash     string          `json:"hash,omitempty"`
	State    json.RawMessage `json:"state"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <state-file> <journal-file>",
		Short: "Replay a change journal against a state document",
		Long: `Apply loads a state document, replays every change batch from a
journal in order, and prints the resulting state as canonical JSON.

Each journal frame is applied as one transaction, so a frame either
lands as a whole or the replay stops at the offending record.

Exit codes:
  0 - Journal fully applied
  1 - A change batch was rejected (bad path, bad index, bad value)
  2 - Command error (missing files, parse failures)

Examples:
  arbor apply state.json journal.jsonl
  arbor apply state.yaml journal.jsonl --hash
  arbor apply state.json journal.jsonl --format json --verbose`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Hash, "hash", false, "include the canonical snapshot hash")

	return cmd
}

func runApply(opts *ApplyOptions, statePath, journalPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	store, err := openStore(opts.RootOptions, statePath, cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(journalPath)
	if err != nil {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("open journal: %v", err))
	}
	defer f.Close()

	frames, err := journal.ReadAll(f)
	if err != nil {
		return outputCommandError(formatter, ErrCodeJournal, err.Error())
	}

	result := ApplyResult{Frames: len(frames)}
	for i, frame := range frames {
		if err := store.ApplyChanges(frame.Changes); err != nil {
			_ = formatter.Error(ErrCodeReplay, fmt.Sprintf("frame %d (seq %d): %v", i, frame.Seq, err), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("journal replay failed at frame %d", i))
		}
		result.Changes += len(frame.Changes)
		formatter.VerboseLog("Applied frame %d: seq=%d revision=%s changes=%d", i, frame.Seq, frame.Revision, len(frame.Changes))
	}

	result.Seq = store.Seq()
	result.Revision = store.Revision()

	canonical, err := arbor.MarshalCanonical(store.Snapshot())
	if err != nil {
		return WrapExitError(ExitFailure, "canonicalize final state", err)
	}
	result.State = json.RawMessage(canonical)

	if opts.Hash {
		hash, err := arbor.SnapshotHash(store.Snapshot())
		if err != nil {
			return WrapExitError(ExitFailure, "hash final state", err)
		}
		result.Hash = hash
	}

	if opts.Format == "json" {
		return formatter.SuccessWithRevision(result, result.Revision)
	}

	fmt.Fprintln(formatter.Writer, string(canonical))
	if opts.Hash {
		fmt.Fprintf(formatter.Writer, "hash: %s\n", result.Hash)
	}
	formatter.VerboseLog("Applied %d frame(s), %d change(s); seq=%d revision=%s",
		result.Frames, result.Changes, result.Seq, result.Revision)
	return nil
}

// openStore loads a state document and builds a store around it. The
// store logs to stderr at debug level when verbose is set and stays
// silent otherwise.
func openStore(opts *RootOptions, statePath string, cmd *cobra.Command) (*arbor.Store, error) {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	state, err := LoadState(statePath)
	if err != nil {
		return nil, outputCommandError(formatter, codeForLoadError(err), err.Error())
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	store, err := arbor.New(state, arbor.WithLogger(logger))
	if err != nil {
		se := stateErrorFrom(err)
		_ = formatter.Error(se.Code, se.Message, nil)
		return nil, NewExitError(ExitFailure, se.Message)
	}
	return store, nil
}
