package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/archetype/internal/compiler"
	"github.com/roach88/archetype/internal/ir"
)

// NewSchemeCommand creates the scheme command group.
func NewSchemeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheme",
		Short: "Manage schemes and their fields",
		Long: `Create, inspect and evolve schemes.

Removing a field or changing a field's shape bumps the scheme version and
migrates every current entry in one transaction. Adding, rekeying and
reordering fields keep the version.

Field definitions are JSON objects:
  {"key": "title", "type": "STRING", "required": true, "rules": {"max-char": 80}}`,
	}

	cmd.AddCommand(
		schemeCommand(opts, "create <name>", "Create an empty scheme", 1, runSchemeCreate),
		schemeCommand(opts, "get <scheme-id>", "Show a scheme", 1, runSchemeGet),
		schemeCommand(opts, "list", "List schemes", 0, runSchemeList),
		schemeCommand(opts, "rename <scheme-id> <name>", "Rename a scheme", 2, runSchemeRename),
		schemeCommand(opts, "remove <scheme-id>", "Remove a scheme and all of its entries", 1, runSchemeRemove),
		schemeCommand(opts, "add-field <scheme-id> <field-json>", "Append a field", 2, runAddField),
		schemeCommand(opts, "remove-field <scheme-id> <key>", "Remove a field and migrate entries", 2, runRemoveField),
		schemeCommand(opts, "rekey-field <scheme-id> <key> <new-key>", "Rename a field key and migrate entries", 3, runRekeyField),
		schemeCommand(opts, "update-field <scheme-id> <key> <field-json>", "Replace a field definition", 3, runUpdateField),
		schemeCommand(opts, "index-field <scheme-id> <key> <index>", "Move a field to a new position", 3, runIndexField),
		schemeCommand(opts, "history <scheme-id>", "List the scheme's migrations", 1, runSchemeHistory),
	)
	return cmd
}

// schemeCommand builds a leaf command that runs fn inside a session.
func schemeCommand(opts *RootOptions, use, short string, nargs int,
	fn func(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(nargs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(s *session, f *OutputFormatter) error {
				return fn(cmd, s, f, args)
			})
		},
	}
}

func runSchemeCreate(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	sc, err := s.eng.Schemes.Create(cmd.Context(), args[0], s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(sc, func(w io.Writer) {
		f.Done("Created scheme %s (id %d)", sc.Name, sc.ID)
	})
}

func runSchemeGet(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	sc, err := s.eng.Schemes.Get(cmd.Context(), id)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(sc, func(w io.Writer) { printScheme(w, sc) })
}

func runSchemeList(cmd *cobra.Command, s *session, f *OutputFormatter, _ []string) error {
	list, err := s.eng.Schemes.List(cmd.Context())
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(list, func(w io.Writer) {
		if len(list) == 0 {
			fmt.Fprintln(w, "No schemes.")
			return
		}
		for _, sum := range list {
			fmt.Fprintf(w, "%4d  %-24s v%-3d %s\n", sum.ID, sum.Name, sum.Version,
				dimColor(fmt.Sprintf("%d field(s)", sum.FieldCount)))
		}
	})
}

func runSchemeRename(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	sc, err := s.eng.Schemes.Rename(cmd.Context(), id, args[1], s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(sc, func(w io.Writer) {
		f.Done("Renamed scheme %d to %s", sc.ID, sc.Name)
	})
}

func runSchemeRemove(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	if err := s.eng.Schemes.Remove(cmd.Context(), id, s.actor); err != nil {
		return f.Fail(err)
	}
	return f.Render(map[string]int64{"removed": id}, func(w io.Writer) {
		f.Done("Removed scheme %d", id)
	})
}

func runAddField(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	def, err := compiler.DecodeField([]byte(args[1]))
	if err != nil {
		return f.BadInput("%v", err)
	}
	sc, err := s.eng.Schemes.AddField(cmd.Context(), id, def, s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(sc, func(w io.Writer) {
		f.Done("Added field %s to %s (version %d)", def.Key, sc.Name, sc.Version)
	})
}

func runRemoveField(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	sc, err := s.eng.Schemes.RemoveField(cmd.Context(), id, args[1], s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(sc, func(w io.Writer) {
		f.Done("Removed field %s from %s (version %d)", args[1], sc.Name, sc.Version)
	})
}

func runRekeyField(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	sc, err := s.eng.Schemes.RekeyField(cmd.Context(), id, args[1], args[2], s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(sc, func(w io.Writer) {
		f.Done("Rekeyed %s to %s in %s", args[1], args[2], sc.Name)
	})
}

func runUpdateField(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	def, err := compiler.DecodeField([]byte(args[2]))
	if err != nil {
		return f.BadInput("%v", err)
	}
	sc, err := s.eng.Schemes.UpdateField(cmd.Context(), id, args[1], def, s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(sc, func(w io.Writer) {
		f.Done("Updated field %s in %s (version %d)", args[1], sc.Name, sc.Version)
	})
}

func runIndexField(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(args[2])
	if err != nil {
		return f.BadInput("invalid index %q", args[2])
	}
	sc, err := s.eng.Schemes.IndexField(cmd.Context(), id, args[1], idx, s.actor)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(sc, func(w io.Writer) { printScheme(w, sc) })
}

func runSchemeHistory(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "scheme", args[0])
	if err != nil {
		return err
	}
	records, err := s.eng.Schemes.Migrations(cmd.Context(), id)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(records, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintf(w, "No migrations for scheme %d.\n", id)
			return
		}
		for _, m := range records {
			fmt.Fprintf(w, "v%d -> v%d  %-13s %-16s %d entr%s  %s\n",
				m.FromVersion, m.ToVersion, m.Kind, keyColor(m.FieldKey), m.Affected,
				plural(m.Affected, "y", "ies"), dimColor(m.Token))
		}
	})
}

// printScheme writes a scheme and its fields in text form.
func printScheme(w io.Writer, sc ir.Scheme) {
	fmt.Fprintf(w, "%s (id %d, version %d)\n", sc.Name, sc.ID, sc.Version)
	if len(sc.Fields) == 0 {
		fmt.Fprintln(w, dimColor("  no fields"))
		return
	}
	for i, fd := range sc.Fields {
		typ := string(fd.Type)
		if fd.IsArray {
			typ += "[]"
		}
		var flags []string
		if fd.Required {
			flags = append(flags, "required")
		}
		if fd.HasDefault() {
			if b, err := ir.MarshalIRValue(fd.Default); err == nil {
				flags = append(flags, "default="+string(b))
			}
		}
		roles := make([]string, len(fd.Access))
		for j, r := range fd.Access {
			roles[j] = string(r)
		}
		fmt.Fprintf(w, "  %d  %-16s %-10s %-24s %s\n", i, keyColor(fd.Key), typ,
			strings.Join(flags, " "), dimColor(strings.Join(roles, ",")))
	}
}

// parseID parses a positive record id argument.
func parseID(f *OutputFormatter, what, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, f.BadInput("invalid %s id %q", what, arg)
	}
	return id, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
