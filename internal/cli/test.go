package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/harness"
)

type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioOutcome is the verdict for one scenario file.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteSummary aggregates every scenario found under the directory.
type SuiteSummary struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

func (s *SuiteSummary) add(o ScenarioOutcome) {
	s.Scenarios = append(s.Scenarios, o)
	s.Total++
	if o.Pass {
		s.Passed++
	} else {
		s.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run reconciliation scenarios",
		Long: `Run YAML scenarios against an in-memory store.

Each scenario feeds card actions through one or more refreshes and checks
its report expectations and assertions. When <dir>/golden/<name>.golden
exists the rendered ledger must match it; --update rewrites it instead.

A failing scenario exits 1. A missing directory or bad filter exits 2.

Examples:
  flowledger test ./scenarios
  flowledger test ./scenarios --filter "sprint_*"
  flowledger test ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current output")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+dir)
	}

	paths, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}

	summary := SuiteSummary{Scenarios: []ScenarioOutcome{}}
	for _, path := range paths {
		summary.add(runScenario(path, opts.Update))
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		err = writeSuiteJSON(w, summary)
	} else {
		err = writeSuiteText(w, summary)
	}
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", summary.Failed, summary.Total))
	}
	return nil
}

// scenarioName is the file name without its extension.
func scenarioName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("bad filter %q: %w", filter, err)
		}
	}

	var paths []string
	walk := func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && d.Name() == "golden":
			return filepath.SkipDir
		case d.IsDir():
			return nil
		}
		if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, scenarioName(path)); !ok {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	}
	if err := filepath.WalkDir(dir, walk); err != nil {
		return nil, err
	}
	return paths, nil
}

func runScenario(path string, update bool) ScenarioOutcome {
	failed := func(name, format string, args ...any) ScenarioOutcome {
		return ScenarioOutcome{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	sc, err := harness.LoadScenario(path)
	if err != nil {
		return failed(scenarioName(path), "failed to load scenario: %v", err)
	}
	res, err := harness.Run(sc)
	if err != nil {
		return failed(sc.Name, "scenario aborted: %v", err)
	}

	golden := filepath.Join(filepath.Dir(path), "golden", scenarioName(path)+".golden")
	if update {
		if err := writeGolden(golden, res.Ledger); err != nil {
			return failed(sc.Name, "%v", err)
		}
	} else if err := compareGolden(golden, res.Ledger); err != nil {
		res.AddError(err.Error())
	}

	return ScenarioOutcome{Name: sc.Name, Pass: res.Pass, Errors: res.Errors}
}

// compareGolden is a no-op when the scenario has no golden file.
func compareGolden(path, ledger string) error {
	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if string(want) != ledger {
		return errors.New("ledger does not match golden file (run with --update to regenerate)")
	}
	return nil
}

func writeGolden(path, ledger string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(ledger), 0644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}

func writeSuiteJSON(w io.Writer, s SuiteSummary) error {
	resp := CLIResponse{Status: "ok", Data: s}
	if s.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{Code: "E_TEST_FAILED", Message: fmt.Sprintf("%d scenario(s) failed", s.Failed)}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func writeSuiteText(w io.Writer, s SuiteSummary) error {
	if s.Total == 0 {
		_, err := fmt.Fprintln(w, "No scenarios found.")
		return err
	}
	for _, o := range s.Scenarios {
		mark := "✓"
		if !o.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, o.Name)
		for _, e := range o.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
	return err
}
