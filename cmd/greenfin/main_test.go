package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/greenfin/internal/modules/reporting"
	testingpkg "github.com/aristath/greenfin/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with an isolated data directory
func execute(t *testing.T, rawDir string, args ...string) (string, error) {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("GREENFIN_DATA_DIR", dataDir)
	t.Setenv("RAW_DATA_DIR", rawDir)
	t.Setenv("CLEANED_DATA_DIR", filepath.Join(dataDir, "cleaned"))
	t.Setenv("REPORT_DIR", filepath.Join(dataDir, "reports"))
	t.Setenv("PIPELINE_SCHEDULE", "")
	t.Setenv("REPORT_BUCKET", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ingest", "etl", "analyze", "optimize", "run", "serve", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "greenfin dev\n", out)
}

func TestIngestCmd_MissingRawData(t *testing.T) {
	_, err := execute(t, t.TempDir(), "ingest")
	assert.ErrorContains(t, err, "raw data file missing")
}

func TestETLCmd_WithIngest(t *testing.T) {
	out, err := execute(t, testingpkg.WriteRawFixtures(t), "etl", "--ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleaned 4 loans (2 missing emission reports)")
}

func TestAnalyzeCmd_SyntheticFallback(t *testing.T) {
	out, err := execute(t, t.TempDir(), "analyze")
	require.NoError(t, err)
	assert.Contains(t, out, "Source: synthetic (100 loans)")
	assert.Contains(t, out, reporting.ReportFile)
}

func TestRunCmd(t *testing.T) {
	out, err := execute(t, testingpkg.WriteRawFixtures(t), "run", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "source: file, 4 loans")
	assert.Contains(t, out, "Verdict:")

	reportPath := filepath.Join(os.Getenv("REPORT_DIR"), reporting.ReportFile)
	assert.FileExists(t, reportPath)
}

func TestRootCmd_InvalidPipelineConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  esg: 0.9\n  governance: 0.9\n  emissions: 0.9\n"), 0644))

	_, err := execute(t, t.TempDir(), "analyze", "--config", path)
	assert.ErrorContains(t, err, "sum to 1")
}
