package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/config"
	"github.com/naka-gawa/bitbucket-pipeline-report/internal/usecase"
)

var testNow = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

// newWorkspaceServer serves a workspace with two repositories. "api" has two
// runs inside the window, "web" fails with a server error.
func newWorkspaceServer(t *testing.T, repositories string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/acme", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot", user)
		assert.Equal(t, "pw", pass)
		fmt.Fprint(w, repositories)
	})
	mux.HandleFunc("/repositories/acme/api/pipelines/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"values": [
			{"created_on": "2024-05-07T09:00:00Z", "duration_in_seconds": 600, "creator": {"nickname": "alice"}},
			{"created_on": "2024-05-02T09:00:00Z", "duration_in_seconds": 300, "creator": {"nickname": "bob"}},
			{"created_on": "2024-04-20T09:00:00Z", "duration_in_seconds": 9999, "creator": {"nickname": "carol"}}
		]}`)
	})
	mux.HandleFunc("/repositories/acme/web/pipelines/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		BaseURL:          baseURL,
		Workspace:        "acme",
		Username:         "bot",
		AppPassword:      "pw",
		OutputFile:       filepath.Join(dir, "report.json"),
		ReportOutputFile: filepath.Join(dir, "report.md"),
		MaxDisplayRows:   5,
		WindowDays:       7,
		PageLen:          50,
		Concurrency:      1,
	}
}

func TestRunReport(t *testing.T) {
	server := newWorkspaceServer(t, `{"values": [{"slug": "web", "uuid": "{2}", "updated_on": "2024-05-03T00:00:00Z"}, {"slug": "api", "uuid": "{1}", "updated_on": "2024-05-07T00:00:00Z"}]}`)
	cfg := testConfig(t, server.URL)
	var stdout, stderr bytes.Buffer

	err := runReport(context.Background(), cfg, testNow, true, &stdout, &stderr, log.New(io.Discard, "", 0))

	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "Skipped 1 repositories")
	assert.Contains(t, stderr.String(), "web")

	dump, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var repos []map[string]any
	require.NoError(t, json.Unmarshal(dump, &repos))
	require.Len(t, repos, 1)
	assert.Equal(t, "api", repos[0]["slug"])
	assert.Equal(t, float64(2), repos[0]["pipeline_count"])
	assert.Equal(t, float64(15), repos[0]["total_minutes"])
	assert.Equal(t, "alice", repos[0]["top_user"])
	assert.Equal(t, float64(1), repos[0]["top_user_pipeline_count"])

	md, err := os.ReadFile(cfg.ReportOutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(md), "Period: 2024-05-01 to 2024-05-08")
	assert.Contains(t, string(md), "| api     | 15.00         | 2         | 7.50        |")
	assert.Contains(t, string(md), "Most pipelines: alice (1)")
	assert.Contains(t, string(md), "Most time: alice (10.00 minutes)")
	assert.Contains(t, string(md), "## api\n\n- Pipelines: 2\n- Total minutes: 15.00\n- Users: alice, bob\n- Top user: alice (1)\n")
	assert.NotContains(t, string(md), "carol")

	assert.Contains(t, stdout.String(), "alice")
	assert.Contains(t, stdout.String(), "bob")
}

func TestRunReport_NoRepositories(t *testing.T) {
	server := newWorkspaceServer(t, `{"values": []}`)
	cfg := testConfig(t, server.URL)
	var stdout, stderr bytes.Buffer

	err := runReport(context.Background(), cfg, testNow, false, &stdout, &stderr, log.New(io.Discard, "", 0))

	require.Error(t, err)
	assert.True(t, errors.Is(err, usecase.ErrNoRepositories))
	assert.NoFileExists(t, cfg.OutputFile)
	assert.NoFileExists(t, cfg.ReportOutputFile)
}

func TestRunReport_OutputFailureKeepsOtherOutput(t *testing.T) {
	server := newWorkspaceServer(t, `{"values": [{"slug": "api", "uuid": "{1}", "updated_on": "2024-05-07T00:00:00Z"}]}`)
	cfg := testConfig(t, server.URL)
	cfg.OutputFile = filepath.Join(t.TempDir(), "missing", "report.json")
	cfg.ReportOutputFile = "-"
	var stdout, stderr bytes.Buffer

	err := runReport(context.Background(), cfg, testNow, false, &stdout, &stderr, log.New(io.Discard, "", 0))

	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "failed to write")
	assert.Contains(t, stdout.String(), "# Pipeline Report")
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{}
	addReportFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--workspace", "other", "--days", "30", "--ignore-repos", "a,b"}))
	cfg := &config.Config{Workspace: "acme", WindowDays: 7, MaxDisplayRows: 3, OutputFile: "dump.json"}

	applyFlags(cmd, cfg)

	assert.Equal(t, "other", cfg.Workspace)
	assert.Equal(t, 30, cfg.WindowDays)
	assert.Equal(t, 3, cfg.MaxDisplayRows, "unset flags keep the configured value")
	assert.Equal(t, "dump.json", cfg.OutputFile)
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}}, cfg.IgnoredPipes)
	assert.Nil(t, cfg.IgnoredForks)
}
