package gitrepos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// ErrRepositoryNotFound indicates the hosting service does not know the repository.
var ErrRepositoryNotFound = errors.New("repository not found")

// RepositoryDetails is the subset of repository metadata used by jobs.
type RepositoryDetails struct {
	FullName      string
	DefaultBranch string
	Private       bool
	Archived      bool
	SizeKB        int
}

// DetailsProvider looks up repository details before cloning.
type DetailsProvider interface {
	Lookup(ctx context.Context, repo Repository) (RepositoryDetails, error)
}

// GitHubDetails looks repositories up through the GitHub REST API.
type GitHubDetails struct {
	client *github.Client
}

// NewGitHubDetails creates a provider. token may be empty for anonymous access.
// baseURL overrides the API endpoint (GitHub Enterprise); empty uses api.github.com.
func NewGitHubDetails(ctx context.Context, token, baseURL string) (*GitHubDetails, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(httpClient)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHubDetails{client: client}, nil
}

// Lookup implements DetailsProvider.
func (g *GitHubDetails) Lookup(ctx context.Context, repo Repository) (RepositoryDetails, error) {
	r, resp, err := g.client.Repositories.Get(ctx, repo.Owner(), repo.Name())
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return RepositoryDetails{}, fmt.Errorf("%w: %s", ErrRepositoryNotFound, repo.ID())
		}
		return RepositoryDetails{}, fmt.Errorf("github lookup failed: %w", err)
	}

	return RepositoryDetails{
		FullName:      r.GetFullName(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		Archived:      r.GetArchived(),
		SizeKB:        r.GetSize(),
	}, nil
}

// NoDetails accepts every repository without a lookup. Used for non-GitHub hosts
// or when lookups are disabled.
type NoDetails struct{}

// Lookup implements DetailsProvider.
func (NoDetails) Lookup(_ context.Context, repo Repository) (RepositoryDetails, error) {
	return RepositoryDetails{FullName: repo.Path}, nil
}
