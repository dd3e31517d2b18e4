package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/config"
)

// ValidationIssue is one configuration error in validate output.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Config *ConfigSummary    `json:"config,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ConfigSummary is the resolved configuration as validate reports it.
type ConfigSummary struct {
	TotalItems int    `json:"total_items"`
	PageSize   int    `json:"page_size"`
	FailEvery  int    `json:"fail_every"`
	Delay      string `json:"delay"`
	ResetDelay string `json:"reset_delay"`
	Journal    string `json:"journal,omitempty"`
	LogLevel   string `json:"log_level"`
}

func summarizeConfig(cfg config.Config) *ConfigSummary {
	return &ConfigSummary{
		TotalItems: cfg.API.TotalItems,
		PageSize:   cfg.API.PageSize,
		FailEvery:  cfg.API.FailEvery,
		Delay:      cfg.API.Delay.String(),
		ResetDelay: cfg.ResetDelay.String(),
		Journal:    cfg.Journal,
		LogLevel:   cfg.LogLevel.String(),
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Validate a demo configuration file",
		Long: `Validate a CUE demo configuration against the embedded schema.

Every violation is reported with its position in the file. Durations and
the log level are checked after schema unification.

Exit codes:
  0 - Configuration valid
  1 - Configuration invalid
  2 - File not found or unreadable

Examples:
  flowstate validate ./demo.cue
  flowstate validate ./demo.cue --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Validating %s", path)

	cfg, errs := config.Load(path, config.LoadModeCollectAll)
	if len(errs) == 0 {
		summary := summarizeConfig(cfg)
		if formatter.JSON() {
			return formatter.Success(ValidationResult{Valid: true, Config: summary})
		}
		formatter.Printf("✓ %s is valid\n", path)
		formatter.Printf("  api: %d items, %d per page, every %d call fails, %s delay\n",
			summary.TotalItems, summary.PageSize, summary.FailEvery, summary.Delay)
		formatter.Printf("  reset delay %s, log level %s\n", summary.ResetDelay, summary.LogLevel)
		return nil
	}

	issues := make([]ValidationIssue, 0, len(errs))
	for _, err := range errs {
		issues = append(issues, toIssue(err))
	}

	if len(issues) == 1 && issues[0].Code == config.ErrCodeNotFound {
		_ = formatter.Error(issues[0].Code, issues[0].Message, nil)
		return NewExitError(ExitCommandError, issues[0].Message)
	}

	if formatter.JSON() {
		if err := formatter.encode(Response{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error:  &ResponseError{Code: issues[0].Code, Message: issues[0].Message},
		}); err != nil {
			return err
		}
	} else {
		formatter.Printf("✗ Validation failed\n\n")
		for _, issue := range issues {
			if issue.Line > 0 {
				formatter.Printf("%s:%d:%d\n", issue.File, issue.Line, issue.Column)
			}
			formatter.Printf("  %s: %s\n\n", issue.Code, issue.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}

func toIssue(err error) ValidationIssue {
	var le *config.LoadError
	if !errors.As(err, &le) {
		return ValidationIssue{Code: config.ErrCodeGeneric, Message: err.Error()}
	}
	issue := ValidationIssue{Code: le.Code, Message: le.Message}
	if le.Pos.IsValid() {
		issue.File = le.Pos.Filename()
		issue.Line = le.Pos.Line()
		issue.Column = le.Pos.Column()
	}
	return issue
}
