// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// Pipeline is a single pipeline run as returned by the pipelines endpoint.
type Pipeline struct {
	CreatedOn       time.Time `json:"created_on"`
	DurationSeconds float64   `json:"duration_seconds"`
	// CreatorNickname is empty when the run has no creator (e.g. scheduled runs).
	CreatorNickname string `json:"creator_nickname,omitempty"`
}

// Minutes returns the run duration in minutes.
func (p Pipeline) Minutes() float64 {
	return p.DurationSeconds / 60
}

// Repository holds a repository record and, after aggregation, its pipeline totals.
// It is the core domain entity of this application.
type Repository struct {
	Slug       string    `json:"slug"`
	UUID       string    `json:"uuid"`
	UpdatedOn  time.Time `json:"updated_on"`
	ParentName string    `json:"parent_name,omitempty"`

	PipelineCount     int      `json:"pipeline_count"`
	TotalMinutes      float64  `json:"total_minutes"`
	ContributingUsers []string `json:"contributing_users"`
	MedianMinutes     float64  `json:"median_minutes"`

	// TopUser created the most of this repository's runs, empty when no
	// run has a creator.
	TopUser              string `json:"top_user"`
	TopUserPipelineCount int    `json:"top_user_pipeline_count"`

	Pipelines []Pipeline `json:"pipelines"`
}

// AverageMinutes returns TotalMinutes/PipelineCount, or 0 when there are no pipelines.
func (r *Repository) AverageMinutes() float64 {
	if r.PipelineCount == 0 {
		return 0
	}
	return r.TotalMinutes / float64(r.PipelineCount)
}
