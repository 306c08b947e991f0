package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

// NewUploadCommand creates the upload command group.
//
// Only upload metadata is stored; UPLOADS fields reference the registered ids
// and their mime-type and size rules are checked against it.
func NewUploadCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Register upload metadata",
	}

	cmd.AddCommand(
		schemeCommand(opts, "register <mime> <size-bytes>", "Register an uploaded file", 2, runUploadRegister),
		schemeCommand(opts, "get <upload-id>", "Show upload metadata", 1, runUploadGet),
	)
	return cmd
}

func runUploadRegister(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	size, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return f.BadInput("invalid size %q", args[1])
	}
	u, err := s.eng.Uploads.Register(cmd.Context(), args[0], size)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(u, func(w io.Writer) {
		f.Done("Registered upload %d (%s, %d bytes)", u.ID, u.Mime, u.Size)
	})
}

func runUploadGet(cmd *cobra.Command, s *session, f *OutputFormatter, args []string) error {
	id, err := parseID(f, "upload", args[0])
	if err != nil {
		return err
	}
	u, err := s.eng.Uploads.Get(cmd.Context(), id)
	if err != nil {
		return f.Fail(err)
	}
	return f.Render(u, func(w io.Writer) {
		fmt.Fprintf(w, "upload %d  %s  %d bytes\n", u.ID, u.Mime, u.Size)
	})
}
