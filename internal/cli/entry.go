package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/archetype/internal/ir"
	"github.com/roach88/archetype/internal/queryir"
)

// EntryListOptions holds flags for entry list and search.
type EntryListOptions struct {
	*RootOptions
	Outdated bool // include entries stamped with an older scheme version
}

// NewEntryCommand creates the entry command group.
func NewEntryCommand(opts *RootOptions) *cobra.Command {
	listOpts := &EntryListOptions{RootOptions: opts}

	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Manage entries",
		Long: `Create, read and search entries.

Entry data is a JSON object validated against the scheme's current fields.
Pass "-" instead of the JSON argument to read it from stdin. Reads are
filtered by --role: fields the role cannot see are left out.

Queries are JSON arrays:
  ["AND", ["EQUAL", ["KEY", "status"], "published"], ["GREATER-THAN", ["KEY", "views"], 100]]`,
	}

	list := schemeCommand(opts, "list <scheme-id>", "List a scheme's entries", 1,
		func(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
			return runEntryList(cmd, s, f, args, listOpts.Outdated)
		})
	list.Flags().BoolVar(&listOpts.Outdated, "outdated", false, "include entries of older scheme versions")

	search := schemeCommand(opts, "search <scheme-id> <query-json>", "Search a scheme's entries", 2,
		func(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
			return runEntrySearch(cmd, s, f, args, listOpts.Outdated)
		})
	search.Flags().BoolVar(&listOpts.Outdated, "outdated", false, "include entries of older scheme versions")

	cmd.AddCommand(
		schemeCommand(opts, "create <scheme-id> <data-json>", "Create an entry", 2, runEntryCreate),
		schemeCommand(opts, "edit <entry-id> <data-json>", "Replace an entry's data", 2, runEntryEdit),
		schemeCommand(opts, "get <entry-id>", "Show an entry", 1, runEntryGet),
		list,
		search,
		schemeCommand(opts, "duplicate <entry-id>", "Copy an entry", 1, runEntryDuplicate),
		schemeCommand(opts, "remove <entry-id>", "Remove an entry", 1, runEntryRemove),
	)
	return cmd
}

func runEntryCreate(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	schemeID, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	data, err := readObject(cmd, f, args[1])
	if err != nil {
		return err
	}
	e, err := s.eng.Entries.Create(cmd.Context(), schemeID, data, s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(e, func(w io.Writer) {
		f.Done("Created entry %d in scheme %d", e.ID, e.SchemeID)
	})
}

func runEntryEdit(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "entry", args[0])
	if err != nil {
		return err
	}
	data, err := readObject(cmd, f, args[1])
	if err != nil {
		return err
	}
	e, err := s.eng.Entries.Edit(cmd.Context(), id, data, s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(e, func(w io.Writer) {
		f.Done("Updated entry %d (version %d)", e.ID, e.SchemeVersion)
	})
}

func runEntryGet(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "entry", args[0])
	if err != nil {
		return err
	}
	e, err := s.eng.Entries.GetByID(cmd.Context(), id, s.role)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(e, func(w io.Writer) { printEntry(w, e) })
}

func runEntryList(cmd *cobra.Command, s *session, f *OutputFormatter, args []string, outdated bool) error {
	schemeID, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	entries, err := s.eng.Entries.List(cmd.Context(), schemeID, outdated, s.role)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(entries, func(w io.Writer) { printEntries(w, entries) })
}

func runEntrySearch(cmd *cobra.Command, s *session, f *OutputFormatter, args []string, outdated bool) error {
	schemeID, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	raw, err := readArg(cmd, args[1])
	if err != nil {
		return f.BadInput("reading query: %v", err)
	}
	expr, err := queryir.Parse(raw)
	if err != nil {
		return f.BadInput("%v", err)
	}
	for _, w := range queryir.Validate(expr).Warnings {
		f.VerboseLog("query warning: %s", w)
	}

	entries, err := s.eng.Entries.Search(cmd.Context(), schemeID, outdated, expr, s.role)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(entries, func(w io.Writer) { printEntries(w, entries) })
}

func runEntryDuplicate(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "entry", args[0])
	if err != nil {
		return err
	}
	e, err := s.eng.Entries.Duplicate(cmd.Context(), id, s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(e, func(w io.Writer) {
		f.Done("Duplicated entry %d as %d", id, e.ID)
	})
}

func runEntryRemove(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "entry", args[0])
	if err != nil {
		return err
	}
	if err := s.eng.Entries.Remove(cmd.Context(), id, s.actor); err != nil {
		return f.Fail(err)
	}
	return f.Render(map[string]int64{"removed": id}, func(w io.Writer) {
		f.Done("Removed entry %d", id)
	})
}

// readArg returns arg, or all of stdin when arg is "-".
func readArg(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	return io.ReadAll(cmd.InOrStdin())
}

// readObject reads a JSON object argument, keeping key order.
func readObject(cmd *cobra.Command, f *OutputFormatter, arg string) (*ir.IRObject, error) {
	raw, err := readArg(cmd, arg)
	if err != nil {
		return nil, f.BadInput("reading data: %v", err)
	}
	obj, err := ir.UnmarshalIRObject(raw)
	if err != nil {
		return nil, f.BadInput("data must be a JSON object: %v", err)
	}
	return obj, nil
}

// printEntry writes one entry with its data on the following lines.
func printEntry(w io.Writer, e ir.Entry) {
	fmt.Fprintf(w, "entry %d (scheme %d, version %d)\n", e.ID, e.SchemeID, e.SchemeVersion)
	if e.Data == nil {
		return
	}
	for _, k := range e.Data.Keys() {
		v, _ := e.Data.Get(k)
		b, err := ir.MarshalIRValue(v)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", keyColor(k), b)
	}
}

// printEntries writes one line per entry.
func printEntries(w io.Writer, entries []ir.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return
	}
	for _, e := range entries {
		data := []byte("{}")
		if e.Data != nil {
			if b, err := ir.MarshalIRValue(e.Data); err == nil {
				data = b
			}
		}
		fmt.Fprintf(w, "%4d  %s  %s\n", e.ID, dimColor(fmt.Sprintf("v%d", e.SchemeVersion)), data)
	}
	fmt.Fprintf(w, "%d entr%s\n", len(entries), plural(len(entries), "y", "ies"))
}
