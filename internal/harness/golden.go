package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden-file form of a scenario run.
type Snapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	State        State        `json:"state"`
}

// MarshalSnapshot renders the trace and final state of result as indented
// JSON. Map keys are sorted by encoding/json, so the output is stable.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(Snapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		State:        result.State,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario, fails t if it does not pass, and
// compares its snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares result's snapshot against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
}
