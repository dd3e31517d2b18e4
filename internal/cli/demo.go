package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/config"
	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/example"
	"github.com/roach88/flowstate/internal/store"
	"github.com/roach88/flowstate/internal/trace"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	ConfigPath string
	Journal    string
	Script     string
	Settle     time.Duration
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Drive the paginated todo list machine",
		Long: `Run the paginated todo list machine against a simulated backend and
print every state it emits.

Actions are read from --script (comma separated) or, without a script, one
per line from stdin:
  retry               retry loading the first page
  next                load the next page
  toggle:<id>         toggle the favorite flag of an item
  retry_toggle:<id>   retry a failed toggle

A scripted action is dispatched once the machine has been quiet for the
settle duration, so every step sees the outcome of the previous one. The
demo exits after the last action settles, at end of input, or on Ctrl-C.

Under --format json every state is written as one canonical JSON line.

Examples:
  flowstate demo --script "next,toggle:7"
  flowstate demo --config ./demo.cue --journal ./flowstate.db
  echo next | flowstate demo -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "CUE configuration file")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal path (overrides the config)")
	cmd.Flags().StringVar(&opts.Script, "script", "", `comma separated actions, e.g. "next,toggle:7"`)
	cmd.Flags().DurationVar(&opts.Settle, "settle", 0, "quiet period before each scripted action (default: longest configured delay + 250ms)")

	return cmd
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.LoadFile(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		cfg = loaded
	}
	if opts.Journal != "" {
		cfg.Journal = opts.Journal
	}

	script, err := parseScript(opts.Script)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid script", err)
	}

	settle := opts.Settle
	if settle <= 0 {
		settle = max(cfg.API.Delay, cfg.ResetDelay) + 250*time.Millisecond
	}

	logger := opts.newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var engineOpts []engine.Option

	var st *store.Store
	if cfg.Journal != "" {
		st, err = store.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithJournal(st))
	}

	api := example.NewSimulatedAPI(cfg.API)
	p := example.NewPagination(api,
		example.WithResetDelay(cfg.ResetDelay),
		example.WithLogger(logger),
		example.WithEngineOptions(engineOpts...),
	)
	machineID := p.Machine().ID()

	printer := &statePrinter{w: formatter.Writer, json: formatter.JSON(), activity: make(chan struct{}, 1)}
	logger.Info("demo starting", "machine", machineID, "journal", cfg.Journal)
	formatter.Printf("Machine %s\n", machineID)

	p.Start(ctx, printer.print)
	defer p.Stop()

	dispatch := func(action example.Action) error {
		logger.Debug("dispatching", "action", trace.TypeName(action))
		return p.Dispatch(action)
	}

	if script != nil {
		err = runScript(ctx, script, settle, printer.activity, dispatch)
	} else {
		err = runInteractive(ctx, cmd.InOrStdin(), settle, printer.activity, dispatch, logger)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "demo failed", err)
	}

	p.Stop()
	logger.Info("demo stopped", "machine", machineID, "states", printer.count())
	if st != nil {
		formatter.Printf("Journal written to %s (flowstate trace --db %s --machine %s)\n", cfg.Journal, cfg.Journal, machineID)
	}
	return nil
}

// parseScript splits a comma separated action list. An empty script
// returns nil.
func parseScript(script string) ([]example.Action, error) {
	if strings.TrimSpace(script) == "" {
		return nil, nil
	}
	var actions []example.Action
	for _, part := range strings.Split(script, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		action, err := example.ParseAction(part)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// runScript dispatches each action after the machine has settled, then
// waits for the last one to settle.
func runScript(ctx context.Context, script []example.Action, settle time.Duration, activity <-chan struct{}, dispatch func(example.Action) error) error {
	for _, action := range script {
		if !waitQuiet(ctx, activity, settle) {
			return nil
		}
		if err := dispatch(action); err != nil {
			return err
		}
	}
	waitQuiet(ctx, activity, settle)
	return nil
}

// runInteractive dispatches one action per input line until end of input,
// "quit", or cancellation. Unparsable lines are logged and skipped.
func runInteractive(ctx context.Context, in io.Reader, settle time.Duration, activity <-chan struct{}, dispatch func(example.Action) error, logger *slog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				waitQuiet(ctx, activity, settle)
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "quit", "exit":
				return nil
			}
			action, err := example.ParseAction(line)
			if err != nil {
				logger.Warn("ignoring input", "error", err)
				continue
			}
			if err := dispatch(action); err != nil {
				return err
			}
		}
	}
}

// waitQuiet blocks until no activity has been signalled for d. It returns
// false if ctx ends first.
func waitQuiet(ctx context.Context, activity <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-activity:
			timer.Reset(d)
		case <-timer.C:
			return true
		}
	}
}

// statePrinter writes every emitted state and signals activity for the
// settle logic.
type statePrinter struct {
	w        io.Writer
	json     bool
	activity chan struct{}

	mu sync.Mutex
	n  int
}

func (p *statePrinter) print(s example.PaginationState) {
	p.mu.Lock()
	p.n++
	n := p.n
	if p.json {
		line, err := trace.State(s)
		if err != nil {
			line = []byte(fmt.Sprintf(`{"type":%q,"error":%q}`, trace.TypeName(s), err.Error()))
		}
		fmt.Fprintf(p.w, "%s\n", line)
	} else {
		fmt.Fprintf(p.w, "[%d] %s\n", n, describeState(s))
	}
	p.mu.Unlock()

	select {
	case p.activity <- struct{}{}:
	default:
	}
}

func (p *statePrinter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

// describeState renders a one-line summary of a pagination state.
func describeState(s example.PaginationState) string {
	switch st := s.(type) {
	case example.LoadFirstPage:
		return "LoadFirstPage"
	case example.LoadingFirstPageError:
		return fmt.Sprintf("LoadingFirstPageError: %v (dispatch retry)", st.Cause)
	case example.ShowContent:
		var b strings.Builder
		fmt.Fprintf(&b, "ShowContent page=%d items=%d next=%s", st.CurrentPage, len(st.Items), st.NextPageLoadingState)
		if !st.CanLoadNextPage {
			b.WriteString(" (last page)")
		}
		for _, item := range st.Items {
			if item.FavoriteStatus != example.NotFavorite {
				fmt.Fprintf(&b, " %s:%s/%d", item.ID, item.FavoriteStatus, item.StargazersCount)
			}
		}
		return b.String()
	default:
		return trace.TypeName(s)
	}
}
