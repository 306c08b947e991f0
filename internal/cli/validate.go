package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/archetype/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool `json:"valid"`
	Schemes int  `json:"schemes"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Check CUE schemes without importing them",
		Long: `Compile and check CUE scheme documents without touching the database.

Reports every problem found: unknown field types, rules that do not fit
their type, duplicate keys and duplicate scheme names.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := compiler.Load(path, compiler.LoadModeCollectAll)
	if len(loadErrors) > 0 {
		// A path that cannot be read is a command error; bad schemes are a
		// validation failure.
		exit := ExitFailure
		if loadResult == nil {
			exit = ExitCommandError
		}
		return outputLoadErrors(formatter, "Validation failed", loadErrors, exit)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Schemes: len(loadResult.Schemes)})
	}
	formatter.Done("All schemes valid")
	fmt.Fprintf(formatter.Writer, "  %d scheme(s) checked\n", len(loadResult.Schemes))
	return nil
}
