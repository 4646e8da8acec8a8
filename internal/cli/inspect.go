package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelo/arbor"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Path string // restrict the inspection to a subtree
}

// InspectResult holds the canonical form and census of a state document.
type InspectResult struct {
	Hash      string          `json:"hash"`
	Path      string          `json:"path,omitempty"`
	Maps      int             `json:"maps"`
	Sequences int             `json:"sequences"`
	Leaves    int             `json:"leaves"`
	Depth     int             `json:"depth"`
	State     json.RawMessage `json:"state"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <state-file>",
		Short: "Print the canonical form and fingerprint of a state document",
		Long: `Inspect loads a state document and prints its canonical JSON form,
its SHA-256 fingerprint, and a census of the tree (map, sequence, and
leaf counts plus nesting depth).

Two documents with the same fingerprint hold the same state regardless
of key order or source format.

Examples:
  arbor inspect state.json
  arbor inspect state.yaml --path config.servers
  arbor inspect state.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Path, "path", "", "inspect only the subtree at this dotted path")

	return cmd
}

func runInspect(opts *InspectOptions, statePath string, cmd *cobra.Command) error {
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

	value := any(store.Snapshot())
	if opts.Path != "" {
		node := store.Root().Get(strings.Split(opts.Path, ".")...)
		value = node.Value()
		if value == nil {
			_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("path %q does not resolve", opts.Path), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("path %q does not resolve", opts.Path))
		}
	}

	canonical, err := arbor.MarshalCanonical(value)
	if err != nil {
		return WrapExitError(ExitFailure, "canonicalize state", err)
	}

	result := InspectResult{
		Hash:  arbor.HashCanonical(canonical),
		Path:  opts.Path,
		State: json.RawMessage(canonical),
	}
	census(value, 1, &result)

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, string(canonical))
	fmt.Fprintf(formatter.Writer, "hash: %s\n", result.Hash)
	formatter.VerboseLog("census: %d map(s), %d sequence(s), %d leaf value(s), depth %d",
		result.Maps, result.Sequences, result.Leaves, result.Depth)
	return nil
}

// census walks the tree and tallies container and leaf counts plus the
// maximum nesting depth.
func census(v any, depth int, r *InspectResult) {
	if depth > r.Depth {
		r.Depth = depth
	}
	switch val := v.(type) {
	case map[string]any:
		r.Maps++
		for _, child := range val {
			census(child, depth+1, r)
		}
	case []any:
		r.Sequences++
		for _, child := range val {
			census(child, depth+1, r)
		}
	default:
		r.Leaves++
	}
}
