package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/compiler"
	"github.com/roach88/flowledger/internal/ir"
)

// NewProfileCommand creates the profile command.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile [file.cue]",
		Short: "Check a board profile and show the resolved lists",
		Long: `Compile a CUE board profile against the profile schema, apply defaults
and print the resolved list configuration. Without a file the built-in
default profile is shown.

Exit codes:
  0 - Profile is valid
  1 - Profile has errors
  2 - Command error (file not found, etc.)

Examples:
  flowledger profile ./team.cue
  flowledger profile ./team.cue --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runProfile(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runProfile(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	p, err := compiler.LoadProfile(path)
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		if err := f.Error(profileErrorCode(compileErr), compileErr.Error(), nil); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "invalid profile", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load profile", err)
	}

	return f.Render(p, func(w io.Writer) error {
		writeProfile(w, p)
		return nil
	})
}

// profileErrorCode extracts the [Exxx] code from a validation message, or
// E_CUE for a schema error.
func profileErrorCode(err *compiler.CompileError) string {
	if strings.HasPrefix(err.Message, "[") {
		if end := strings.Index(err.Message, "]"); end > 0 {
			return err.Message[1:end]
		}
	}
	return "E_CUE"
}

func writeProfile(w io.Writer, p ir.BoardProfile) {
	groups := make([]string, len(p.Workflow))
	for i, g := range p.Workflow {
		groups[i] = "[" + strings.Join(g, " | ") + "]"
	}
	fmt.Fprintf(w, "workflow:               %s\n", strings.Join(groups, " -> "))
	fmt.Fprintf(w, "cumulative:             %s\n", strings.Join(p.Cumulative, ", "))
	fmt.Fprintf(w, "commitment:             %s\n", strings.Join(p.Commitment, ", "))
	fmt.Fprintf(w, "active:                 %s\n", strings.Join(p.Active, ", "))
	fmt.Fprintf(w, "in_progress:            %s\n", strings.Join(p.InProgress, ", "))
	fmt.Fprintf(w, "completed:              %s\n", strings.Join(p.Completed, ", "))
	fmt.Fprintf(w, "sprint_marker:          %s\n", p.SprintMarker)
	fmt.Fprintf(w, "completed_list_pattern: %s\n", p.CompletedListPattern)
}
