package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sirad/internal/resolve"
)

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a config in a temp dir that reads the sample layouts
// and raw files and keeps every store inside the temp dir.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	layouts, err := filepath.Abs("../../testdata/sample/layouts")
	require.NoError(t, err)
	raw, err := filepath.Abs("../../testdata/sample/raw")
	require.NoError(t, err)

	content := "version: \"1\"\n" +
		"pii_salt: cli-test-salt\n" +
		"layouts: " + layouts + "\n" +
		"raw: " + raw + "\n" +
		"metrics_file: build/sirad.prom\n" +
		extra
	path := filepath.Join(t.TempDir(), "sirad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuildCommand_JSON(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := runCLI(t, "--config", cfg, "--format", "json", "build", "--export")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   BuildResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	ingest := make(map[string]DatasetIngest)
	for _, d := range resp.Data.Ingest.Datasets {
		ingest[d.Dataset] = d
	}
	require.Len(t, ingest, 3)
	assert.Equal(t, 7, ingest["tax"].Loaded)
	assert.Equal(t, 1, ingest["tax"].Dropped)
	require.Len(t, ingest["tax"].Failures, 1)
	assert.Contains(t, ingest["tax"].Failures[0], "line 8")

	assert.Equal(t, 11, resp.Data.Resolve.Rows)
	assert.Equal(t, 7, resp.Data.Resolve.Groups)
	assert.Equal(t, 1, resp.Data.Resolve.ByKind[resolve.KindUnresolved])

	assert.Equal(t, "1", resp.Data.Research.Version)
	assert.Len(t, resp.Data.Research.Tables, 3)

	require.NotNil(t, resp.Data.Export)
	assert.Len(t, resp.Data.Export.Files, 3)
	for _, f := range resp.Data.Export.Files {
		assert.FileExists(t, f)
	}

	metrics, err := os.ReadFile(filepath.Join(filepath.Dir(cfg), "build", "sirad.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "sirad_identity_groups 7")
	assert.Contains(t, string(metrics), `sirad_rows_dropped_total{dataset="tax"} 1`)
}

func TestStageCommands_Text(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := runCLI(t, "--config", cfg, "ingest", "tax", "credit_scores", "wages")
	require.NoError(t, err)
	assert.Equal(t, "tax: read 8, loaded 7, dropped 1\ncredit_scores: read 4, loaded 4, dropped 0\nwages: read 3, loaded 3, dropped 0\n", out)

	out, err = runCLI(t, "--config", cfg, "--verbose", "resolve")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "resolved 11 rows into 7 ids\n"), out)
	assert.Contains(t, out, "review: credit_scores pii_id")

	out, err = runCLI(t, "--config", cfg, "research", "wages")
	require.NoError(t, err)
	assert.Contains(t, out, "research v1: ")
	assert.Contains(t, out, "wages")
	assert.NotContains(t, out, "credit_scores")

	out, err = runCLI(t, "--config", cfg, "export")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(cfg), "build", "research", "1", "wages.txt")+"\n", out)
}

func TestIngestCommand_Verbose(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := runCLI(t, "--config", cfg, "-v", "ingest", "tax")
	require.NoError(t, err)
	assert.Contains(t, out, "tax: read 8, loaded 7, dropped 1\n")
	assert.Contains(t, out, "line 8")
	assert.NotContains(t, out, "not-a-number")
}

func TestResolveCommand_BeforeIngest(t *testing.T) {
	cfg := writeConfig(t, "")

	_, err := runCLI(t, "--config", cfg, "resolve")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "MISSING_TABLE", errorCode(err))
}

func TestIngestCommand_UnknownDataset(t *testing.T) {
	cfg := writeConfig(t, "")

	_, err := runCLI(t, "--config", cfg, "ingest", "payroll")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCommand_MissingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "build")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "CONFIG", errorCode(err))
}

func TestValidateCommand(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := runCLI(t, "--config", cfg, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "tax")
	assert.Contains(t, out, "wages                 3 columns, data only")
	assert.Contains(t, out, "✓ Config valid")

	// Nothing is written by validate.
	_, err = os.Stat(filepath.Join(filepath.Dir(cfg), "build"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidateCommand_Errors(t *testing.T) {
	cfg := writeConfig(t, "datasets:\n  - name: payroll\n")

	out, err := runCLI(t, "--config", cfg, "--format", "json", "validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.True(t, exitErr.Reported)

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	assert.Contains(t, resp.Data.Errors[0], "no layout declares this dataset")
	assert.Contains(t, resp.Data.Errors[1], "raw file not found")
}

func TestTestCommand(t *testing.T) {
	out, err := runCLI(t, "test", "../harness/testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ jon_john_smith")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommand_FilterJSON(t *testing.T) {
	out, err := runCLI(t, "--format", "json", "test", "../harness/testdata/scenarios", "--filter", "ssn_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "ssn_repair", resp.Data.Scenarios[0].Name)
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))

	layouts, err := filepath.Abs("../../testdata/sample/layouts")
	require.NoError(t, err)
	scenario := `name: tiny
description: "one wages row"
layouts: ` + layouts + `
datasets:
  - name: wages
    header: [year, industry, avg_wage]
    rows:
      - ["2019", "retail", "31000"]
assertions:
  - type: research_rows
    dataset: wages
    count: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "tiny.yaml"), []byte(scenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "tiny.golden"), []byte("{}\n"), 0644))

	out, err := runCLI(t, "test", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")

	out, err = runCLI(t, "test", scenarios, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ tiny (golden updated)")

	_, err = runCLI(t, "test", scenarios)
	require.NoError(t, err)
}
