package report

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/domain"
)

var testWindow = domain.Window{
	Start: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	End:   time.Date(2024, 5, 8, 12, 30, 0, 0, time.UTC),
}

func repo(slug string, minutes float64, count int) *domain.Repository {
	return &domain.Repository{Slug: slug, TotalMinutes: minutes, PipelineCount: count}
}

func TestRender_RollupScenario(t *testing.T) {
	users := domain.NewUserStats()
	users.Add(domain.Pipeline{CreatorNickname: "alice", DurationSeconds: 600})
	users.Add(domain.Pipeline{CreatorNickname: "alice", DurationSeconds: 60})
	users.Add(domain.Pipeline{CreatorNickname: "bob", DurationSeconds: 1200})

	busy := repo("a", 120, 4)
	busy.ContributingUsers = []string{"alice", "bob"}
	busy.TopUser, busy.TopUserPipelineCount = "alice", 3

	var buf bytes.Buffer
	err := Render(&buf, testWindow, []*domain.Repository{busy, repo("b", 30, 3)}, users, 1)

	require.NoError(t, err)
	expected := strings.Join([]string{
		"# Pipeline Report",
		"",
		"Period: 2024-05-01 to 2024-05-08",
		"",
		"| Project                | Total Minutes | Pipelines | Avg Minutes |",
		"|------------------------|---------------|-----------|-------------|",
		"| a                      | 120.00        | 4         | 30.00       |",
		"| Other (1 repositories) | 30.00         | 3         | 10.00       |",
		"",
		"Most pipelines: alice (2)",
		"Most time: bob (20.00 minutes)",
		"",
		"## a",
		"",
		"- Pipelines: 4",
		"- Total minutes: 120.00",
		"- Users: alice, bob",
		"- Top user: alice (3)",
		"",
		"## b",
		"",
		"- Pipelines: 3",
		"- Total minutes: 30.00",
		"- Users: N/A",
		"- Top user: N/A",
		"",
	}, "\n")
	assert.Equal(t, expected, buf.String())
}

func TestRender_NoActors(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, testWindow, []*domain.Repository{repo("a", 0, 0)}, domain.NewUserStats(), DefaultMaxRows)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Most pipelines: N/A\n")
	assert.Contains(t, buf.String(), "Most time: N/A\n")
	assert.NotContains(t, buf.String(), "Other (")
}

func TestBuildTable(t *testing.T) {
	testCases := []struct {
		name          string
		repos         []*domain.Repository
		maxRows       int
		expectedRows  [][]string
		expectedWidth int
	}{
		{
			name:          "zero pipelines render a zero average",
			repos:         []*domain.Repository{repo("idle", 0, 0)},
			maxRows:       5,
			expectedRows:  [][]string{{"idle", "0.00", "0", "0.00"}},
			expectedWidth: len(HeaderProject),
		},
		{
			name:    "exactly maxRows repositories have no rollup",
			repos:   []*domain.Repository{repo("one", 3, 1), repo("two", 1, 2)},
			maxRows: 2,
			expectedRows: [][]string{
				{"one", "3.00", "1", "3.00"},
				{"two", "1.00", "2", "0.50"},
			},
			expectedWidth: len(HeaderProject),
		},
		{
			name: "hidden identifiers do not widen the project column",
			repos: []*domain.Repository{
				repo("service-with-long-name", 9, 3),
				repo("web", 5, 1),
				repo("this-slug-is-far-too-long-to-be-shown-anyway", 1, 0),
			},
			maxRows: 2,
			expectedRows: [][]string{
				{"service-with-long-name", "9.00", "3", "3.00"},
				{"web", "5.00", "1", "5.00"},
				{"Other (1 repositories)", "1.00", "0", "0.00"},
			},
			expectedWidth: len("service-with-long-name"),
		},
		{
			name:    "zero rows rolls everything up",
			repos:   []*domain.Repository{repo("x", 1, 1), repo("y", 2, 1)},
			maxRows: 0,
			expectedRows: [][]string{
				{"Other (2 repositories)", "3.00", "2", "1.50"},
			},
			expectedWidth: len("Other (2 repositories)"),
		},
		{
			name:          "no repositories renders only the header",
			maxRows:       5,
			expectedWidth: len(HeaderProject),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table := BuildTable(tc.repos, tc.maxRows)

			assert.Equal(t, tc.expectedRows, table.Rows)
			widths := table.Widths()
			assert.Equal(t, tc.expectedWidth, widths[0])
			assert.Equal(t, []int{len(HeaderMinutes), len(HeaderPipelines), len(HeaderAverage)}, widths[1:])
		})
	}
}

func TestBuildTable_RollupIdentity(t *testing.T) {
	var repos []*domain.Repository
	var totalMinutes float64
	var totalCount int
	for i := range 12 {
		minutes := float64(100-i*7) + 0.25
		count := i + 1
		repos = append(repos, repo("repo-"+strconv.Itoa(i), minutes, count))
		totalMinutes += minutes
		totalCount += count
	}

	for _, maxRows := range []int{0, 1, 5, 11, 12, 20} {
		table := BuildTable(repos, maxRows)

		var minutes float64
		var count int
		for _, row := range table.Rows {
			m, err := strconv.ParseFloat(row[1], 64)
			require.NoError(t, err)
			c, err := strconv.Atoi(row[2])
			require.NoError(t, err)
			minutes += m
			count += c
		}
		assert.InDelta(t, totalMinutes, minutes, 1e-6, "maxRows=%d", maxRows)
		assert.Equal(t, totalCount, count, "maxRows=%d", maxRows)
	}
}

func TestTable_Render(t *testing.T) {
	table := NewTable(Column{Header: "Name", FitContent: true}, Column{Header: "N"})
	table.AddRow("alpha", "123")
	table.AddRow("b")

	var buf bytes.Buffer
	require.NoError(t, table.Render(&buf))

	expected := "| Name  | N |\n" +
		"|-------|---|\n" +
		"| alpha | 123 |\n" +
		"| b     |   |\n"
	assert.Equal(t, expected, buf.String())
}

func TestRenderActors(t *testing.T) {
	users := domain.NewUserStats()
	users.Add(domain.Pipeline{CreatorNickname: "alice", DurationSeconds: 90})
	users.Add(domain.Pipeline{CreatorNickname: "bob", DurationSeconds: 30})
	users.Add(domain.Pipeline{CreatorNickname: "bob", DurationSeconds: 30})

	var buf bytes.Buffer
	RenderActors(&buf, users)

	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "1.50")
	assert.Less(t, strings.Index(out, "bob"), strings.Index(out, "alice"), "busiest actor comes first")
}
