package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/roach88/archetype/internal/compiler"
	"github.com/roach88/archetype/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled scheme definitions.
type CompilationResult struct {
	Schemes []ir.SchemeDef `json:"schemes"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <path>",
		Short: "Compile CUE schemes to JSON field definitions",
		Long: `Compile the CUE scheme documents in a directory (or a single .cue file)
to the JSON field definitions the engine stores.

Nothing is written to the database; use import for that.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := compiler.Load(path, compiler.LoadModeCollectAll)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, "Compilation failed", loadErrors, ExitCommandError)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)
	for _, def := range loadResult.Schemes {
		formatter.VerboseLog("Compiled scheme: %s", def.Name)
	}

	result := &CompilationResult{Schemes: loadResult.Schemes}

	if opts.Output != "" {
		if err := writeDefsToFile(result, opts.Output); err != nil {
			_ = formatter.Error(errorCodeInput, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	formatter.Done("Compiled %d scheme(s)", len(result.Schemes))
	fmt.Fprintln(formatter.Writer)
	for _, def := range result.Schemes {
		fmt.Fprintf(formatter.Writer, "  %s: %d field(s)\n", def.Name, len(def.Fields))
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote field definitions to %s\n", opts.Output)
	}
	return nil
}

// outputLoadErrors reports loader errors and returns an ExitError with exit.
func outputLoadErrors(formatter *OutputFormatter, title string, errs []error, exit int) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		code, _ := parseLoadError(errs[0])
		return NewExitError(exit, fmt.Sprintf("%s: %s with %d error(s)", code, title, len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "%s %s\n\n", failMark(), title)
	for _, err := range errs {
		code, message := parseLoadError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	code, _ := parseLoadError(errs[0])
	return NewExitError(exit, fmt.Sprintf("%s: %s with %d error(s)", code, title, len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// writeDefsToFile writes the compilation result as indented JSON.
func writeDefsToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling definitions: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
