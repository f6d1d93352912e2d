package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldpurpose/internal/harness"
)

const passingScenario = `
name: cli_displacement
description: "bob outbids alice, alice withdraws"
flow:
  - as: alice
    invoke: setPurpose
    args: { purpose: "Plant a tree", stake: "0.1" }
    expect: { case: Success }
  - as: bob
    invoke: setPurpose
    args: { purpose: "Clean the river", stake: "0.11" }
    expect: { case: Success }
  - as: alice
    invoke: withdraw
    args: {}
    expect:
      case: Success
      result: { amount: "0.1" }
assertions:
  - type: wallet
    as: alice
    equals: "0.1"
  - type: conservation
`

const failingScenario = `
name: cli_wrong_expectation
description: "expects the owner to be able to override themselves"
flow:
  - as: alice
    invoke: setPurpose
    args: { purpose: "Plant a tree", stake: "0.1" }
  - as: alice
    invoke: setPurpose
    args: { purpose: "Plant two trees", stake: "0.2" }
    expect: { case: Success }
assertions:
  - type: conservation
`

func writeScenarioFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format, Logger: discardLogger()}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := executeTest(t, "json", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "displacement.yaml", passingScenario)

	out, err := executeTest(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cli_displacement")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "displacement.yaml", passingScenario)
	writeScenarioFile(t, dir, "wrong.yaml", failingScenario)

	out, err := executeTest(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response struct {
		Status string      `json:"status"`
		Data   SuiteReport `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	assert.Equal(t, codeScenariosFailed, response.Error.Code)
	assert.Equal(t, "1 of 2 scenarios failed", response.Error.Message)
	assert.Equal(t, 2, response.Data.Total)
	assert.Equal(t, 1, response.Data.Passed)
	assert.Equal(t, 1, response.Data.Failed)

	byName := map[string]ScenarioReport{}
	for _, s := range response.Data.Scenarios {
		byName[s.Name] = s
	}

	passed := byName["cli_displacement"]
	assert.True(t, passed.Pass)
	assert.Equal(t, filepath.Join(dir, "displacement.yaml"), passed.File)
	assert.Equal(t, 3, passed.Calls)
	assert.True(t, passed.Replayed)
	assert.True(t, passed.Conserved)
	assert.Equal(t, harness.GoldenNone, passed.Golden)

	failed := byName["cli_wrong_expectation"]
	assert.False(t, failed.Pass)
	assert.True(t, failed.Replayed, "a wrong expectation still replays")
	require.NotEmpty(t, failed.Errors)
	assert.Contains(t, failed.Errors[0], `expected case "Success", got "SelfOverride"`)
}

func TestTestCommandReportsText(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "displacement.yaml", passingScenario)

	out, err := executeTest(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cli_displacement (3 calls, replayed)")
	assert.NotContains(t, out, "not conserved")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "broken.yaml", "name: broken\n")

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "load: ")
}

func TestTestCommandSetupRejected(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "setup.yaml", `
name: setup_rejected
description: "a setup step that cannot succeed"
setup:
  - as: alice
    invoke: withdraw
    args: {}
flow:
  - as: alice
    invoke: getBalance
    args: {}
assertions:
  - type: conservation
`)

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ setup_rejected")
	assert.Contains(t, out, "run: setup step 0")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "displacement.yaml", passingScenario)
	writeScenarioFile(t, dir, "wrong.yaml", failingScenario)

	out, err := executeTest(t, "text", dir, "--filter", "displace*")
	require.NoError(t, err)
	assert.Contains(t, out, "Scenarios: 1 passed, 0 failed, 1 total")

	_, err = executeTest(t, "text", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "displacement.yaml", passingScenario)

	out, err := executeTest(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")

	goldenPath := filepath.Join(dir, "golden", "displacement.golden")
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"cli_displacement"`)
	assert.Contains(t, string(data), `"tx_token":"scenario-tx"`)

	out, err = executeTest(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "golden matched")

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"cli_displacement","trace":[]}`), 0644))
	out, err = executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "golden mismatch")
	assert.Contains(t, out, "trace differs from "+goldenPath)
}

func TestTestHelpText(t *testing.T) {
	out, err := executeTest(t, "text", "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "scenarios")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "scenarios-dir")
}

func TestHarnessTestdataPasses(t *testing.T) {
	out, err := executeTest(t, "text", "../harness/testdata/scenarios")
	require.NoError(t, err, out)
	assert.Contains(t, out, "All scenarios passed")
}
