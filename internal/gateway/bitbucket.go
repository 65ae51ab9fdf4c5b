// Package gateway provides a gateway to the Bitbucket Cloud API,
// abstracting away cursor pagination and authentication.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/domain"
)

// DefaultBaseURL is the root of the Bitbucket Cloud REST API.
const DefaultBaseURL = "https://api.bitbucket.org/2.0"

const (
	repositoryFields = "values.slug,values.uuid,values.updated_on,values.parent.name,next"
	pipelineFields   = "values.created_on,values.duration_in_seconds,values.creator.nickname,next"
)

// ErrMissingCreatedOn is returned when a pipeline record has no created_on timestamp.
var ErrMissingCreatedOn = errors.New("pipeline record has no created_on")

// Fetcher defines the behavior of a gateway for fetching information from Bitbucket.
type Fetcher interface {
	// FetchRepositories lists the workspace repositories updated inside the window.
	// On error it returns the repositories collected before the failing page.
	FetchRepositories(ctx context.Context, window domain.Window) ([]*domain.Repository, error)
	// FetchPipelines lists the pipelines of one repository created inside the window,
	// newest first.
	FetchPipelines(ctx context.Context, slug string, window domain.Window) ([]domain.Pipeline, error)
}

// Credentials authenticate against the API. AccessToken wins over the
// username/app password pair when both are set.
type Credentials struct {
	Username    string
	AppPassword string
	AccessToken string
}

// Compile-time interface satisfaction check.
var _ Fetcher = (*BitbucketGateway)(nil)

// BitbucketGateway is the concrete implementation of the Fetcher interface.
type BitbucketGateway struct {
	client    Doer
	baseURL   string
	workspace string
	pageLen   int
	logger    *log.Logger
}

type repositoryItem struct {
	Slug      string    `json:"slug"`
	UUID      string    `json:"uuid"`
	UpdatedOn time.Time `json:"updated_on"`
	Parent    *struct {
		Name string `json:"name"`
	} `json:"parent"`
}

type pipelineItem struct {
	CreatedOn         *time.Time `json:"created_on"`
	DurationInSeconds *float64   `json:"duration_in_seconds"`
	Creator           *struct {
		Nickname string `json:"nickname"`
	} `json:"creator"`
}

// NewBitbucketGateway is a constructor that creates a new instance of BitbucketGateway.
func NewBitbucketGateway(baseURL, workspace string, creds Credentials, pageLen int, logger *log.Logger) *BitbucketGateway {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &BitbucketGateway{
		client:    newHTTPClient(creds),
		baseURL:   strings.TrimRight(baseURL, "/"),
		workspace: workspace,
		pageLen:   pageLen,
		logger:    logger,
	}
}

func newHTTPClient(creds Credentials) *http.Client {
	if creds.AccessToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken})
		client := oauth2.NewClient(context.Background(), ts)
		client.Timeout = 30 * time.Second
		return client
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: basicAuth(http.DefaultTransport, creds.Username, creds.AppPassword),
	}
}

func basicAuth(next http.RoundTripper, username, password string) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if username == "" && password == "" {
			return next.RoundTrip(req)
		}
		req = req.Clone(req.Context())
		req.SetBasicAuth(username, password)
		return next.RoundTrip(req)
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func (g *BitbucketGateway) FetchRepositories(ctx context.Context, window domain.Window) ([]*domain.Repository, error) {
	endpoint := fmt.Sprintf("%s/repositories/%s", g.baseURL, url.PathEscape(g.workspace))
	params := url.Values{
		"fields":  {repositoryFields},
		"q":       {fmt.Sprintf("updated_on >= %s", window.Start.UTC().Format(time.RFC3339))},
		"pagelen": {strconv.Itoa(g.pageLen)},
	}

	g.logger.Printf("Fetching repositories of workspace %s updated since %s...", g.workspace, window.Start.Format(time.RFC3339))
	var repos []*domain.Repository
	// The listing is filtered server-side and is not ordered by updated_on,
	// so there is no early-stop predicate here.
	for item, err := range Pages[repositoryItem](ctx, g.client, endpoint, params, nil) {
		if err != nil {
			g.logger.Printf("Error fetching repositories: %v", err)
			return repos, fmt.Errorf("failed to list repositories of %s: %w", g.workspace, err)
		}
		repo := &domain.Repository{
			Slug:      item.Slug,
			UUID:      item.UUID,
			UpdatedOn: item.UpdatedOn,
		}
		if item.Parent != nil {
			repo.ParentName = item.Parent.Name
		}
		repos = append(repos, repo)
	}
	g.logger.Printf("Completed fetching %d repositories.", len(repos))
	return repos, nil
}

func (g *BitbucketGateway) FetchPipelines(ctx context.Context, slug string, window domain.Window) ([]domain.Pipeline, error) {
	endpoint := fmt.Sprintf("%s/repositories/%s/%s/pipelines/", g.baseURL, url.PathEscape(g.workspace), url.PathEscape(slug))
	params := url.Values{
		"fields":  {pipelineFields},
		"sort":    {"-created_on"},
		"pagelen": {strconv.Itoa(g.pageLen)},
	}

	// Pipelines come newest first, so the first one older than the window
	// proves every remaining one is older too.
	inWindow := func(item pipelineItem) bool {
		return item.CreatedOn == nil || window.Contains(*item.CreatedOn)
	}

	var pipelines []domain.Pipeline
	for item, err := range Pages(ctx, g.client, endpoint, params, inWindow) {
		if err != nil {
			g.logger.Printf("Error fetching pipelines for %s: %v", slug, err)
			return nil, fmt.Errorf("failed to list pipelines of %s: %w", slug, err)
		}
		if item.CreatedOn == nil {
			return nil, fmt.Errorf("failed to list pipelines of %s: %w", slug, ErrMissingCreatedOn)
		}
		p := domain.Pipeline{CreatedOn: *item.CreatedOn}
		if item.DurationInSeconds != nil {
			p.DurationSeconds = *item.DurationInSeconds
		}
		if item.Creator != nil {
			p.CreatorNickname = item.Creator.Nickname
		}
		pipelines = append(pipelines, p)
	}
	g.logger.Printf("  Fetched %d pipelines for %s.", len(pipelines), slug)
	return pipelines, nil
}
