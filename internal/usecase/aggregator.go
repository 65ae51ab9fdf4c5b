// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/domain"
	"github.com/naka-gawa/bitbucket-pipeline-report/internal/gateway"
)

// ErrNoRepositories is returned when there is nothing to report on.
var ErrNoRepositories = errors.New("no repositories to report on")

// Options tunes which repositories are reported on and how they are fetched.
type Options struct {
	// IgnoredForkNames excludes forks whose parent has one of these names.
	IgnoredForkNames map[string]struct{}
	// IgnoredRepositories excludes repositories by slug.
	IgnoredRepositories map[string]struct{}
	// Concurrency is the number of repositories whose pipelines are fetched
	// at the same time. Values below 2 fetch strictly one after another.
	Concurrency int
}

// Result is the outcome of one aggregation run.
type Result struct {
	Window domain.Window
	// Repositories are ordered by total minutes, descending.
	Repositories []*domain.Repository
	Users        *domain.UserStats
	// Skipped lists the slugs whose pipelines could not be fetched.
	Skipped []string
}

// Aggregator is the use case for aggregating pipeline stats.
// It orchestrates the fetching and folding of data.
type Aggregator struct {
	fetcher gateway.Fetcher
	opts    Options
	logger  *log.Logger
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(fetcher gateway.Fetcher, opts Options, logger *log.Logger) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
	}
}

type fetchResult struct {
	pipelines []domain.Pipeline
	err       error
}

// Aggregate performs the main business logic.
// A repository whose pipelines fail to load is left out of the result; only a
// run with no repositories at all is an error.
func (a *Aggregator) Aggregate(ctx context.Context, window domain.Window) (*Result, error) {
	a.logger.Println("Usecase: Starting data aggregation...")

	repos, err := a.fetcher.FetchRepositories(ctx, window)
	if err != nil {
		if len(repos) == 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoRepositories, err)
		}
		a.logger.Printf("Usecase: continuing with the %d repositories listed before the error", len(repos))
	}

	repos = a.filter(repos)
	if len(repos) == 0 {
		return nil, ErrNoRepositories
	}

	result := &Result{
		Window: window,
		Users:  domain.NewUserStats(),
	}
	add := func(repo *domain.Repository, fr fetchResult) {
		if fr.err != nil {
			a.logger.Printf("Usecase: skipping %s: %v", repo.Slug, fr.err)
			result.Skipped = append(result.Skipped, repo.Slug)
			return
		}
		Accumulate(repo, fr.pipelines, result.Users)
		result.Repositories = append(result.Repositories, repo)
	}

	if a.opts.Concurrency < 2 {
		for i, repo := range repos {
			pipelines, err := a.fetcher.FetchPipelines(ctx, repo.Slug, window)
			add(repo, fetchResult{pipelines: pipelines, err: err})
			a.progress(i+1, len(repos))
		}
	} else {
		// Fetch in parallel, then fold in listing order so the result does
		// not depend on which request finished first.
		fetched := a.fetchConcurrently(ctx, repos, window)
		for i, repo := range repos {
			add(repo, fetched[i])
			a.progress(i+1, len(repos))
		}
	}

	SortByMinutes(result.Repositories)
	a.logger.Println("Usecase: Aggregation complete.")
	return result, nil
}

func (a *Aggregator) fetchConcurrently(ctx context.Context, repos []*domain.Repository, window domain.Window) []fetchResult {
	fetched := make([]fetchResult, len(repos))
	var eg errgroup.Group
	eg.SetLimit(a.opts.Concurrency)
	for i, repo := range repos {
		eg.Go(func() error {
			pipelines, err := a.fetcher.FetchPipelines(ctx, repo.Slug, window)
			fetched[i] = fetchResult{pipelines: pipelines, err: err}
			return nil
		})
	}
	// Per-repository errors are kept in their slot, never returned.
	_ = eg.Wait()
	return fetched
}

func (a *Aggregator) filter(repos []*domain.Repository) []*domain.Repository {
	kept := make([]*domain.Repository, 0, len(repos))
	for _, repo := range repos {
		if _, ok := a.opts.IgnoredRepositories[repo.Slug]; ok {
			a.logger.Printf("Usecase: ignoring repository %s", repo.Slug)
			continue
		}
		if repo.ParentName != "" {
			if _, ok := a.opts.IgnoredForkNames[repo.ParentName]; ok {
				a.logger.Printf("Usecase: ignoring %s, a fork of %s", repo.Slug, repo.ParentName)
				continue
			}
		}
		kept = append(kept, repo)
	}
	return kept
}

func (a *Aggregator) progress(current, total int) {
	a.logger.Printf("Loading data... %d/%d  %.2f%%", current, total, float64(current)/float64(total)*100)
}

// Accumulate folds one repository's in-window pipelines into the repository
// totals and into users. It is additive: folding the same input twice doubles
// every count and duration.
func Accumulate(repo *domain.Repository, pipelines []domain.Pipeline, users *domain.UserStats) {
	batch := domain.NewUserStats()
	for _, p := range pipelines {
		repo.PipelineCount++
		repo.TotalMinutes += p.Minutes()
		repo.Pipelines = append(repo.Pipelines, p)
		batch.Add(p)
	}
	users.Merge(batch)
	if repo.Pipelines == nil {
		repo.Pipelines = []domain.Pipeline{}
	}

	// Per-repository figures cover every run folded so far, not just this batch.
	creators := domain.NewUserStats()
	minutes := make([]float64, len(repo.Pipelines))
	for i, p := range repo.Pipelines {
		creators.Add(p)
		minutes[i] = p.Minutes()
	}

	repo.ContributingUsers = make([]string, 0, creators.Len())
	for _, s := range creators.Sorted() {
		repo.ContributingUsers = append(repo.ContributingUsers, s.Nickname)
	}
	sort.Strings(repo.ContributingUsers)

	repo.TopUser, repo.TopUserPipelineCount = "", 0
	if top, ok := creators.TopByCount(); ok {
		repo.TopUser, repo.TopUserPipelineCount = top.Nickname, top.PipelineCount
	}

	// Median of an empty set is an error; the zero value stands for "no runs".
	if median, err := stats.Median(minutes); err == nil {
		repo.MedianMinutes = median
	}
}

// SortByMinutes orders repositories by total minutes, descending. Ties keep
// their listing order.
func SortByMinutes(repos []*domain.Repository) {
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].TotalMinutes > repos[j].TotalMinutes
	})
}
