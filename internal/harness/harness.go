package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/example"
	"github.com/roach88/flowstate/internal/store"
	"github.com/roach88/flowstate/internal/testutil"
	"github.com/roach88/flowstate/internal/trace"
)

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the machines. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = logger
	}
}

// Harness is the test execution engine for one scenario run.
type Harness struct {
	scenario *Scenario
	machine  *engine.Machine[example.PaginationState, example.Action]
	states   *testutil.StateRecorder[example.PaginationState]
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh pagination machine, a scripted
// collaborator and an in-memory journal. Machine ids are numbered from the
// scenario name, so repeated runs produce identical results.
//
// Execution flow:
// 1. Create the in-memory journal and the machine under test
// 2. Subscribe and record every emitted state
// 3. Execute steps; the first failing step ends the run
// 4. Stop the machine and cross-check the journal against the trace
// 5. Evaluate assertions
//
// A non-nil error means the harness itself failed. A failing scenario is
// reported through Result.Pass and Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := &runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	api := newScriptedAPI(scenario.API)
	m := example.NewPaginationMachine(api,
		example.WithResetDelay(scenario.resetDelay),
		example.WithLogger(o.logger),
		example.WithEngineOptions(
			engine.WithJournal(st),
			engine.WithIDGenerator(testutil.NewSequentialIDGenerator(scenario.Name)),
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &Harness{
		scenario: scenario,
		machine:  m,
		states:   testutil.Record(m.States(ctx)),
	}

	result := NewResult()
	result.MachineID = m.ID()

	h.executeSteps(result)

	cancel()
	if !h.states.Wait(scenario.timeout) {
		return nil, fmt.Errorf("machine %s did not stop within %s", m.ID(), scenario.timeout)
	}

	for _, s := range h.states.States() {
		value, err := stateValue(s)
		if err != nil {
			return nil, err
		}
		result.AddState(trace.TypeName(s), value)
	}
	result.Calls = api.calls()

	if err := summarizeJournal(st, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSteps runs the scenario's steps in order and stops at the first
// failing one.
func (h *Harness) executeSteps(result *Result) {
	for i, step := range h.scenario.Steps {
		var err error
		switch {
		case step.action != nil:
			h.machine.Dispatch(step.action)
		case step.Expect != nil:
			err = h.expect(*step.Expect)
		case step.Quiet != "":
			if !h.states.Quiet(step.pause) {
				err = fmt.Errorf("expected no state for %s, got one", step.pause)
			}
		case step.Wait != "":
			time.Sleep(step.pause)
		}

		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			return
		}
	}
}

// expect waits for the next emitted state and matches it.
func (h *Harness) expect(e Expect) error {
	s, ok := h.states.Next(h.scenario.timeout)
	if !ok {
		return fmt.Errorf("timed out after %s waiting for %s", h.scenario.timeout, e.State)
	}

	typ := trace.TypeName(s)
	if typ != e.State {
		return fmt.Errorf("expected state %s, got %s", e.State, typ)
	}

	value, err := stateValue(s)
	if err != nil {
		return err
	}
	if !matchFields(value, e.Where) {
		return fmt.Errorf("%s %v does not match %v", typ, value, e.Where)
	}

	if e.Item != nil {
		item, found := findItem(value, e.Item["id"])
		if !found {
			return fmt.Errorf("%s has no item %v", typ, e.Item["id"])
		}
		if !matchFields(item, e.Item) {
			return fmt.Errorf("item %v does not match %v", item, e.Item)
		}
	}
	return nil
}

// stateValue returns the canonical JSON form of s decoded into maps and
// slices, with numbers kept as json.Number.
func stateValue(s example.PaginationState) (any, error) {
	data, err := trace.MarshalCanonical(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", trace.TypeName(s), err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", trace.TypeName(s), err)
	}
	return value, nil
}

// summarizeJournal fills result.Journal and checks that the journal saw
// exactly the emissions the subscriber saw.
func summarizeJournal(st *store.Store, result *Result) error {
	ctx := context.Background()

	machines, err := st.ReadMachines(ctx)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	history, err := st.GetHistory(ctx, result.MachineID)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	result.Journal = JournalSummary{
		Machines:  len(machines),
		Emitted:   len(history.Emitted),
		Events:    history.Events,
		Applied:   history.Applied,
		Discarded: history.Discarded,
	}

	for _, m := range machines {
		if m.ID != result.MachineID && m.ParentID != result.MachineID {
			result.AddError(fmt.Sprintf("journal machine %s (%s) is not linked to %s",
				m.ID, m.Name, result.MachineID))
		}
	}

	if result.Journal.Emitted != len(result.Trace) {
		result.AddError(fmt.Sprintf("journal recorded %d emissions, subscriber saw %d",
			result.Journal.Emitted, len(result.Trace)))
	}
	return nil
}
