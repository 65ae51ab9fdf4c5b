package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/domain"
)

// RenderActors writes one row per actor, busiest first.
func RenderActors(w io.Writer, users *domain.UserStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Actor", "Pipelines", "Minutes", "Avg Minutes"})
	for _, s := range users.Sorted() {
		table.Append([]string{
			s.Nickname,
			strconv.Itoa(s.PipelineCount),
			fmt.Sprintf("%.2f", s.TimeSpentMinutes),
			average(s.TimeSpentMinutes, s.PipelineCount),
		})
	}
	table.Render()
}
