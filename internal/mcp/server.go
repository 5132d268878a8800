package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/sha1n/relic-digest/internal/index"
	"github.com/sha1n/relic-digest/internal/jobs"
)

// DefaultMaxResults is the default number of search hits returned.
const DefaultMaxResults = 20

// JobService submits jobs and reports their status. *jobs.Runner satisfies it.
type JobService interface {
	Submit(repoURL string) (jobs.Submission, error)
	Status(ctx context.Context, repoURL string) (domain.StatusRecord, bool, error)
}

// SummaryIndex searches indexed summaries. *index.BleveStore satisfies it.
type SummaryIndex interface {
	Search(target, text, repository string, size int) (*index.SearchResult, error)
	Get(target, id string) (index.SearchHit, bool, error)
}

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// Jobs enables index_repository and job_status when set.
	Jobs JobService

	// Summaries enables search_summaries and get_summary when set.
	Summaries SummaryIndex

	// Namespace and IndexTarget locate summaries; they must match the walker's.
	Namespace   string
	IndexTarget string
	MaxResults  int
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Jobs != nil {
		RegisterIndexTool(s, cfg.Jobs)
		RegisterStatusTool(s, cfg.Jobs)
	}

	if cfg.Summaries != nil {
		maxResults := cfg.MaxResults
		if maxResults <= 0 {
			maxResults = DefaultMaxResults
		}
		RegisterSearchTool(s, cfg.Summaries, cfg.IndexTarget, maxResults)
		RegisterGetSummaryTool(s, cfg.Summaries, cfg.Namespace, cfg.IndexTarget)
	}

	return s
}

// errorResult builds a tool error result shown to the model.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
