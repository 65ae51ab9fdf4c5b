package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/domain"
)

// DefaultMaxRows is how many repositories get their own row by default.
const DefaultMaxRows = 5

const dateLayout = "2006-01-02"

// Column headers of the repository table.
const (
	HeaderProject   = "Project"
	HeaderMinutes   = "Total Minutes"
	HeaderPipelines = "Pipelines"
	HeaderAverage   = "Avg Minutes"
)

// BuildTable lays out repos, already sorted, as at most maxRows rows plus a
// rollup row for the rest.
func BuildTable(repos []*domain.Repository, maxRows int) *Table {
	if maxRows < 0 {
		maxRows = 0
	}
	table := NewTable(
		Column{Header: HeaderProject, FitContent: true},
		Column{Header: HeaderMinutes},
		Column{Header: HeaderPipelines},
		Column{Header: HeaderAverage},
	)

	shown := repos
	var rest []*domain.Repository
	if len(repos) > maxRows {
		shown, rest = repos[:maxRows], repos[maxRows:]
	}

	for _, repo := range shown {
		table.AddRow(row(repo.Slug, repo.TotalMinutes, repo.PipelineCount)...)
	}

	if len(rest) > 0 {
		var minutes float64
		var count int
		for _, repo := range rest {
			minutes += repo.TotalMinutes
			count += repo.PipelineCount
		}
		table.AddRow(row(fmt.Sprintf("Other (%d repositories)", len(rest)), minutes, count)...)
	}
	return table
}

func row(label string, minutes float64, count int) []string {
	return []string{
		label,
		strconv.FormatFloat(minutes, 'f', 2, 64),
		strconv.Itoa(count),
		average(minutes, count),
	}
}

func average(minutes float64, count int) string {
	if count == 0 {
		return "0.00"
	}
	return strconv.FormatFloat(minutes/float64(count), 'f', 2, 64)
}

// Render writes the full text report: title, window dates, repository table,
// the top-actor summary lines and one detail section per repository.
func Render(w io.Writer, window domain.Window, repos []*domain.Repository, users *domain.UserStats, maxRows int) error {
	var b strings.Builder

	b.WriteString("# Pipeline Report\n\n")
	fmt.Fprintf(&b, "Period: %s to %s\n\n", window.Start.Format(dateLayout), window.End.Format(dateLayout))

	if err := BuildTable(repos, maxRows).Render(&b); err != nil {
		return err
	}
	b.WriteString("\n")

	if top, ok := users.TopByCount(); ok {
		fmt.Fprintf(&b, "Most pipelines: %s (%d)\n", top.Nickname, top.PipelineCount)
	} else {
		b.WriteString("Most pipelines: N/A\n")
	}
	if top, ok := users.TopByTime(); ok {
		fmt.Fprintf(&b, "Most time: %s (%.2f minutes)\n", top.Nickname, top.TimeSpentMinutes)
	} else {
		b.WriteString("Most time: N/A\n")
	}

	for _, repo := range repos {
		writeRepository(&b, repo)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeRepository appends the detail section of one repository.
func writeRepository(b *strings.Builder, repo *domain.Repository) {
	fmt.Fprintf(b, "\n## %s\n\n", repo.Slug)
	fmt.Fprintf(b, "- Pipelines: %d\n", repo.PipelineCount)
	fmt.Fprintf(b, "- Total minutes: %.2f\n", repo.TotalMinutes)
	if len(repo.ContributingUsers) == 0 {
		b.WriteString("- Users: N/A\n")
		b.WriteString("- Top user: N/A\n")
		return
	}
	fmt.Fprintf(b, "- Users: %s\n", strings.Join(repo.ContributingUsers, ", "))
	fmt.Fprintf(b, "- Top user: %s (%d)\n", repo.TopUser, repo.TopUserPipelineCount)
}
