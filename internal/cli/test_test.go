package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

// copyScenario copies a harness scenario into dir/scenarios.
func copyScenario(t *testing.T, dir, name string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(harnessScenarios, name+".yaml"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scenarios"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenarios", name+".yaml"), data, 0644))
}

func TestTestCommand_HarnessScenariosPass(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ defaults_when_empty")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_FilterJSON(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios, "--filter", "scheduled_*", "--format", "json")
	require.NoError(t, err, out)

	var result TestResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Passed)
	for _, sr := range result.Scenarios {
		assert.True(t, sr.Pass, sr.Name)
	}
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "defaults_when_empty")
	scenarios := filepath.Join(dir, "scenarios")
	golden := filepath.Join(dir, "golden", "defaults_when_empty.golden")

	out, err := execute(t, "test", scenarios, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "golden updated")
	written, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(written), `"scenario_name":"defaults_when_empty"`)

	out, err = execute(t, "test", scenarios)
	require.NoError(t, err, out)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"stale"}`), 0644))
	out, err = execute(t, "test", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ defaults_when_empty")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_GoldenFlag(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "scheduled_live")
	goldenDir := filepath.Join(dir, "traces")

	out, err := execute(t, "test", filepath.Join(dir, "scenarios"), "--update", "--golden", goldenDir)
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(goldenDir, "scheduled_live.golden"))
}

func TestTestCommand_BrokenScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\nsteps: []\n"), 0644))

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_EmptyDirectory(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err, out)
	assert.Contains(t, out, "No scenarios found.")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "c.json", "scheduled_x.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = findScenarioFiles(dir, "scheduled_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "scheduled_x.yaml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}
