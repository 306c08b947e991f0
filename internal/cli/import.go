package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/archetype/internal/compiler"
	"github.com/roach88/archetype/internal/engine"
)

// ImportResult is the JSON payload of the import command.
type ImportResult struct {
	Schemes []engine.ImportResult `json:"schemes"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import CUE schemes into the database",
		Long: `Import the CUE scheme documents in a directory (or a single .cue file).

Schemes are matched by name. A scheme that does not exist is created; its
fields are appended in order. Fields whose key already exists are skipped,
never changed, so importing the same documents twice is a no-op.

Examples:
  archetype import ./schemes
  archetype import ./schemes/blog.cue --db ./blog.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := compiler.Load(path, compiler.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, "Import failed", loadErrors, ExitCommandError)
	}
	formatter.VerboseLog("Loaded %d scheme(s) from %s", len(loadResult.Schemes), path)

	return opts.withSession(cmd, func(s *session, f *OutputFormatter) error {
		results, err := s.eng.Import(cmd.Context(), loadResult.Schemes, s.actor)
		if err != nil {
			for _, r := range results {
				f.VerboseLog("imported %s before failure", r.Name)
			}
			return f.Fail(err)
		}

		if f.Format == "json" {
			return f.Success(ImportResult{Schemes: results})
		}

		f.Done("Imported %d scheme(s)", len(results))
		for _, r := range results {
			status := "updated"
			if r.Created {
				status = "created"
			}
			fmt.Fprintf(f.Writer, "  %s (id %d, version %d): %s", r.Name, r.SchemeID, r.Version, status)
			if len(r.Added) > 0 {
				fmt.Fprintf(f.Writer, ", added %s", strings.Join(r.Added, ", "))
			}
			if len(r.Skipped) > 0 {
				fmt.Fprintf(f.Writer, ", %s", dimColor("skipped "+strings.Join(r.Skipped, ", ")))
			}
			fmt.Fprintln(f.Writer)
		}
		return nil
	})
}
