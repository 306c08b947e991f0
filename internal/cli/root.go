package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/archetype/internal/boltstore"
	"github.com/roach88/archetype/internal/config"
	"github.com/roach88/archetype/internal/engine"
	"github.com/roach88/archetype/internal/ir"
	"github.com/roach88/archetype/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // config file path
	DB      string // overrides storage.path
	Driver  string // overrides storage.driver
	Role    string // overrides default_role
	Actor   int64  // user id recorded on mutations
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the archetype CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "archetype",
		Short: "Archetype - schema-driven content store",
		Long: `Define versioned schemes, store entries validated against them and
query entries with JSON query expressions filtered by role.`,
		Version:       ir.EngineVersion,
		SilenceErrors: true, // main reports the returned error
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", config.DefaultFile, "config file")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "storage path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "storage driver: sqlite|bbolt (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Role, "role", "", "role used for reads: PUBLIC|EDITOR|ADMIN (overrides config)")
	cmd.PersistentFlags().Int64Var(&opts.Actor, "actor", 1, "user id recorded on changes")

	cmd.AddCommand(NewSchemeCommand(opts))
	cmd.AddCommand(NewEntryCommand(opts))
	cmd.AddCommand(NewUploadCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// backend is a repository that owns a database handle.
type backend interface {
	engine.Repository
	io.Closer
}

// session is an opened engine with the settings it was opened with.
type session struct {
	eng     *engine.Engine
	role    ir.Role
	actor   int64
	cfg     *config.Config
	backend backend
}

func (s *session) Close() error {
	return s.backend.Close()
}

// resolveConfig loads the config file and applies the flag overrides.
func (o *RootOptions) resolveConfig() (*config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, err
	}
	if o.DB != "" {
		cfg.Storage.Path = o.DB
	}
	if o.Driver != "" {
		cfg.Storage.Driver = o.Driver
	}
	if o.Role != "" {
		cfg.DefaultRole = o.Role
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open resolves the configuration, opens the configured backend and builds
// an engine over it. Engine logs go to logs.
func (o *RootOptions) open(logs io.Writer) (*session, error) {
	cfg, err := o.resolveConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	role, _ := cfg.Role()
	level, _ := cfg.Level()

	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: level}))

	var repo backend
	switch cfg.Storage.Driver {
	case config.DriverBolt:
		repo, err = boltstore.Open(cfg.Storage.Path)
	default:
		repo, err = store.Open(cfg.Storage.Path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.Debug("storage opened", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)

	eng := engine.New(repo,
		engine.WithLogger(logger),
		engine.WithCacheSize(cfg.CacheSize),
		engine.WithMigrationAttempts(cfg.MigrationAttempts),
	)
	return &session{eng: eng, role: role, actor: o.Actor, cfg: cfg, backend: repo}, nil
}

// withSession opens a session for the duration of fn.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(s *session, f *OutputFormatter) error) error {
	f := o.formatter(cmd)
	s, err := o.open(cmd.ErrOrStderr())
	if err != nil {
		_ = f.Error(errorCodeConfig, err.Error(), nil)
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			f.VerboseLog("error closing database: %v", closeErr)
		}
	}()
	return fn(s, f)
}
