package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dispense/internal/ir"
)

// GoldenDir is where golden traces live, relative to the package under test.
const GoldenDir = "testdata/scenarios/golden"

// MarshalTrace renders a scenario trace as canonical JSON.
func MarshalTrace(scenarioName string, trace []TraceEvent) ([]byte, error) {
	events := make([]any, len(trace))
	for i, event := range trace {
		m := map[string]any{
			"seq":  event.Seq,
			"type": event.Type,
		}
		if len(event.Args) > 0 {
			m["args"] = stringMap(event.Args)
		}
		if len(event.Result) > 0 {
			m["result"] = stringMap(event.Result)
		}
		events[i] = m
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"trace":         events,
	})
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RunWithGolden executes a scenario and compares the trace against
// GoldenDir/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	traceJSON, err := MarshalTrace(scenario.Name, result.Trace)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}
