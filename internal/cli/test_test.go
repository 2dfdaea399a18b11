package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

const passingScenario = `name: quick_accept
description: Accepted request leaves one outstanding request
request_ids: ["0001-0001"]
subjects:
  - {id: d1, credits: "2.00"}
steps:
  - initiate: d1
    expect: {status: accepted, request_id: "0001-0001"}
assertions:
  - {type: requests, subject: d1, count: 1}
`

const failingScenario = `name: wrong_expectation
description: Expects a decline that does not happen
subjects:
  - {id: d1, credits: "2.00"}
steps:
  - initiate: d1
    expect: {status: declined}
assertions:
  - {type: credits, subject: d1, equals: "2.00"}
`

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "\u2713 success_debit")
	assert.Contains(t, out, "\u2713 All scenarios passed")
	assert.Contains(t, out, "0 failed")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", scenariosDir, "--filter", "success_*")
	require.NoError(t, err, out)

	res := decodeData[TestResult](t, out)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Passed)
	require.Len(t, res.Scenarios, 1)
	assert.Equal(t, "success_debit", res.Scenarios[0].Name)
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quick_accept.yaml", passingScenario)

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "quick_accept.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"quick_accept"`)

	out, err = execute(t, "test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "\u2713 quick_accept\n")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "quick_accept.golden"), []byte("{}"), 0644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong_expectation.yaml", failingScenario)
	writeFile(t, dir, "broken.yaml", "name: [")

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Contains(t, out, `steps[0] (initiate): status = \"accepted\", want \"declined\"`)
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_InvalidFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quick_accept.yaml", passingScenario)

	_, err := execute(t, "test", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "success_debit.golden"),
		goldenFilePath(filepath.Join("scenarios", "success_debit.yaml")))
}
