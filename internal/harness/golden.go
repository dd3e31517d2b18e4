package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flowstate/internal/trace"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string           `json:"scenario_name"`
	Trace        []TraceEvent     `json:"trace"`
	Calls        map[string]int   `json:"calls"`
	Journal      *JournalSnapshot `json:"journal,omitempty"`
}

// JournalSnapshot holds the journal counters that are deterministic for a
// serialized scenario. Discarded requests depend on timing and are left out.
type JournalSnapshot struct {
	Machines int `json:"machines"`
	Emitted  int `json:"emitted"`
	Events   int `json:"events"`
}

// Snapshot renders a result as canonical JSON for golden comparison.
func Snapshot(name string, result *Result) ([]byte, error) {
	return trace.MarshalCanonical(TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Calls:        result.Calls,
		Journal: &JournalSnapshot{
			Machines: result.Journal.Machines,
			Emitted:  result.Journal.Emitted,
			Events:   result.Journal.Events,
		},
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass, or an error if the
// scenario could not be executed.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
