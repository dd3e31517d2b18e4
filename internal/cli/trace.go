package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Machine  string // optional - show one machine's transitions
	Emitted  bool     // only show emitted transitions
	Kinds    []string // only show these transition kinds
	State    string   // only show transitions into this state type
}

func (o *TraceOptions) filtered() bool {
	return o.Emitted || len(o.Kinds) > 0 || o.State != ""
}

// filter builds the journal query for the selected machine.
func (o *TraceOptions) filter() store.Predicate {
	filter := store.And{store.Equals{Field: "machine_id", Value: o.Machine}}
	if o.Emitted {
		filter = append(filter, store.Equals{Field: "emitted", Value: true})
	}
	if len(o.Kinds) > 0 {
		kinds := make([]any, len(o.Kinds))
		for i, k := range o.Kinds {
			kinds[i] = k
		}
		filter = append(filter, store.In{Field: "kind", Values: kinds})
	}
	if o.State != "" {
		filter = append(filter, store.Equals{Field: "state_type", Value: o.State})
	}
	return filter
}

// MachineList is the trace output without --machine.
type MachineList struct {
	Machines []store.MachineSummary `json:"machines"`
}

// MachineTrace is the trace output for a single machine.
type MachineTrace struct {
	MachineID   string                   `json:"machine_id"`
	Transitions []store.TransitionRecord `json:"transitions"`
	Stats       TraceStats               `json:"stats"`
}

// TraceStats holds summary statistics for a machine trace.
type TraceStats struct {
	Transitions int   `json:"transitions"`
	Emitted     int   `json:"emitted"`
	Events      int   `json:"events"`
	Applied     int   `json:"applied"`
	Discarded   int   `json:"discarded"`
	Restarts    int   `json:"restarts"`
	LastSeq     int64 `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a transition journal",
		Long: `Inspect the SQLite journal written by a machine run.

Without --machine every journaled machine is listed. With --machine the
machine's transitions are printed in sequence order: the initial state,
each dispatched event and each state change request, marked with whether
it was applied, emitted or discarded by its guard.

Examples:
  flowstate trace --db ./flowstate.db
  flowstate trace --db ./flowstate.db --machine 01928c4e-...
  flowstate trace --db ./flowstate.db --machine 01928c4e-... --emitted --format json
  flowstate trace --db ./flowstate.db --machine 01928c4e-... --kind event --kind change --state ShowContent`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Machine, "machine", "", "machine id to trace")
	cmd.Flags().BoolVar(&opts.Emitted, "emitted", false, "only show emitted states (requires --machine)")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only show transitions of these kinds: initial, event, change (requires --machine)")
	cmd.Flags().StringVar(&opts.State, "state", "", "only show transitions into this state type (requires --machine)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	if opts.Machine == "" && opts.filtered() {
		return NewExitError(ExitCommandError, "--emitted, --kind and --state require --machine")
	}
	for _, k := range opts.Kinds {
		if k != "initial" && k != "event" && k != "change" {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be initial, event or change", k))
		}
	}

	// Open would create a fresh database at a mistyped path.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.Machine == "" {
		machines, err := st.ReadMachines(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		if formatter.JSON() {
			return formatter.Success(MachineList{Machines: machines})
		}
		printMachines(formatter.Writer, machines)
		return nil
	}

	result, err := buildMachineTrace(ctx, st, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	printMachineTrace(formatter.Writer, result, opts.Verbose)
	return nil
}

func buildMachineTrace(ctx context.Context, st *store.Store, opts *TraceOptions) (MachineTrace, error) {
	records, err := st.QueryTransitions(ctx, opts.filter(), 0)
	if err != nil {
		return MachineTrace{}, err
	}
	history, err := st.GetHistory(ctx, opts.Machine)
	if err != nil {
		return MachineTrace{}, err
	}

	return MachineTrace{
		MachineID:   opts.Machine,
		Transitions: records,
		Stats: TraceStats{
			Transitions: history.Transitions,
			Emitted:     len(history.Emitted),
			Events:      history.Events,
			Applied:     history.Applied,
			Discarded:   history.Discarded,
			Restarts:    history.Restarts,
			LastSeq:     history.LastSeq,
		},
	}, nil
}

func printMachines(w io.Writer, machines []store.MachineSummary) {
	if len(machines) == 0 {
		fmt.Fprintln(w, "No machines found in journal.")
		return
	}

	fmt.Fprintln(w, "=== Machines ===")
	for _, m := range machines {
		name := m.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "  %s  %-12s transitions=%d seq=%d..%d", m.ID, name, m.Transitions, m.FirstSeq, m.LastSeq)
		if m.ParentID != "" {
			fmt.Fprintf(w, " parent=%s", m.ParentID)
		}
		fmt.Fprintln(w)
	}
}

func printMachineTrace(w io.Writer, result MachineTrace, verbose bool) {
	fmt.Fprintf(w, "Trace for machine: %s\n\n", result.MachineID)

	fmt.Fprintln(w, "=== Transitions ===")
	if len(result.Transitions) == 0 {
		fmt.Fprintln(w, "  (no transitions)")
	}
	for _, rec := range result.Transitions {
		label := rec.Kind
		if rec.EventType != "" {
			label += " " + rec.EventType
		}
		fmt.Fprintf(w, "  [%d] %-28s -> %-22s %s\n", rec.Seq, label, rec.StateType, transitionFlags(rec))
		if verbose {
			if rec.Event != "" {
				fmt.Fprintf(w, "       Event: %s\n", rec.Event)
			}
			fmt.Fprintf(w, "       State: %s\n", rec.State)
			fmt.Fprintf(w, "       ID: %s\n", truncateID(rec.ID))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Transitions: %d\n", result.Stats.Transitions)
	fmt.Fprintf(w, "  Emitted:     %d\n", result.Stats.Emitted)
	fmt.Fprintf(w, "  Events:      %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Applied:     %d\n", result.Stats.Applied)
	fmt.Fprintf(w, "  Discarded:   %d\n", result.Stats.Discarded)
	if result.Stats.Restarts > 0 {
		fmt.Fprintf(w, "  Restarts:    %d\n", result.Stats.Restarts)
	}
}

func transitionFlags(rec store.TransitionRecord) string {
	switch {
	case rec.Discarded:
		return "discarded"
	case rec.Emitted:
		return "emitted"
	case rec.Applied:
		return "applied"
	default:
		return ""
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
