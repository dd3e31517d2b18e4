package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter    string // glob over scenario names
	GoldenDir string // compare traces against <dir>/<name>.golden
	Update    bool   // rewrite golden files instead of comparing
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scripted scenarios against the pagination machine",
		Long: `Run YAML scenarios against the pagination machine.

Each scenario drives a fresh machine with a scripted backend, checks the
expected states step by step and evaluates its assertions. With --golden
the emitted trace is also compared byte for byte against a golden file.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unparsable scenarios)

Examples:
  flowstate test ./testdata/scenarios
  flowstate test ./testdata/scenarios --filter "toggle_*"
  flowstate test ./testdata/scenarios --golden ./internal/harness/testdata/golden
  flowstate test ./testdata/scenarios --golden ./golden --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (requires --golden)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Update && opts.GoldenDir == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	scenarios, err := harness.LoadScenarios(scenariosDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}

	logger := opts.newLogger(cmd.ErrOrStderr(), slog.LevelWarn)
	result := TestResult{Scenarios: []ScenarioResult{}}

	for _, scenario := range scenarios {
		if opts.Filter != "" {
			if matched, _ := filepath.Match(opts.Filter, scenario.Name); !matched {
				continue
			}
		}
		formatter.VerboseLog("Running scenario: %s", scenario.Name)

		sr := runScenario(opts, scenario, logger)
		result.Scenarios = append(result.Scenarios, sr)
		result.Total++
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printTestText(formatter, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

// runScenario executes one scenario and, when configured, compares or
// rewrites its golden trace.
func runScenario(opts *TestOptions, scenario *harness.Scenario, logger *slog.Logger) ScenarioResult {
	sr := ScenarioResult{Name: scenario.Name}

	result, err := harness.Run(scenario, harness.WithLogger(logger))
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Errors = result.Errors

	if opts.GoldenDir != "" {
		if err := checkGolden(opts, scenario.Name, result); err != nil {
			sr.Errors = append(sr.Errors, err.Error())
		}
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

func checkGolden(opts *TestOptions, name string, result *harness.Result) error {
	actual, err := harness.Snapshot(name, result)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	path := filepath.Join(opts.GoldenDir, name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, actual, 0o644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}

	expected, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("golden file not found: %s (run with --update to create it)", path)
	}
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(expected, actual) {
		return fmt.Errorf("trace does not match golden file %s (run with --update to regenerate)", path)
	}
	return nil
}

func printTestText(f *OutputFormatter, result TestResult) {
	if result.Total == 0 {
		f.Printf("No scenarios found.\n")
		return
	}

	for _, sr := range result.Scenarios {
		if sr.Pass {
			f.Printf("✓ %s\n", sr.Name)
			continue
		}
		f.Printf("✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			f.Printf("  %s\n", e)
		}
	}

	f.Printf("\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
