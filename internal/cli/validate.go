package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelo/arbor"
)

// ValidationResult holds validation results for a state document.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []StateError `json:"errors,omitempty"`
}

// StateError describes a single data-model violation in a state document.
type StateError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"` // offending Go type, for non-serializable values
	Path    string `json:"path,omitempty"` // dotted path of the offending value
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <state-file>",
		Short: "Validate a state document against the data model",
		Long: `Validate checks that a state document contains only serializable
values: maps with non-empty dot-free string keys, sequences, strings,
numbers, booleans, and nulls.

The document is loaded into a store exactly as New would load it, so a
document that validates here is a document the library will accept.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, statePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	state, err := LoadState(statePath)
	if err != nil {
		return outputCommandError(formatter, codeForLoadError(err), err.Error())
	}

	formatter.VerboseLog("Loaded %s with %d top-level key(s)", statePath, len(state))

	if _, err := arbor.New(state); err != nil {
		return outputValidationErrors(formatter, []StateError{stateErrorFrom(err)})
	}

	return outputValidateSuccess(formatter)
}

// stateErrorFrom converts a store construction error into a StateError,
// surfacing the offending type and path when the data model rejected a
// specific value.
func stateErrorFrom(err error) StateError {
	var nse *arbor.NonSerializableError
	if errors.As(err, &nse) {
		return StateError{
			Code:    ErrCodeInvalid,
			Message: nse.Error(),
			Type:    nse.Type,
			Path:    nse.Path,
		}
	}
	var opErr *arbor.OpError
	if errors.As(err, &opErr) {
		return StateError{
			Code:    ErrCodeInvalid,
			Message: opErr.Error(),
			Path:    opErr.Path,
		}
	}
	return StateError{Code: ErrCodeGeneric, Message: err.Error()}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: true}
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ State is serializable")
	return nil
}

// outputCommandError outputs a command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs validation errors (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, errs []StateError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Code, e.Message)
		if e.Path != "" {
			fmt.Fprintf(formatter.Writer, "    path: %s\n", e.Path)
		}
		if e.Type != "" {
			fmt.Fprintf(formatter.Writer, "    type: %s\n", e.Type)
		}
		fmt.Fprintln(formatter.Writer)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
