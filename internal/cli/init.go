package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/config"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	DataDir string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new configuration file",
		Long: `Write a flowledger.toml with a SQLite database next to it.

Examples:
  flowledger init --config ./flowledger.toml
  flowledger init --config ./flowledger.toml --data-dir /var/lib/flowledger`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "directory for the database (default: the config's directory)")
	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	if opts.Config == "" {
		return NewExitError(ExitCommandError, "--config is required")
	}
	dir := opts.DataDir
	if dir == "" {
		dir = filepath.Dir(opts.Config)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid data directory", err)
	}

	cfg := config.NewConfig(abs)
	if err := config.Init(opts.Config, cfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize config", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(cfg, func(w io.Writer) error {
		fmt.Fprintf(w, "Configuration initialized at %s\n", opts.Config)
		fmt.Fprintf(w, "Database: %s\n", cfg.Database.Path)
		return nil
	})
}
