package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-digest/internal/jobs"
)

// RepositoryArgument identifies a repository by its remote URL.
type RepositoryArgument struct {
	URL string `json:"url" jsonschema_description:"Repository URL (e.g., https://github.com/org/repo or git@github.com:org/repo.git)"`
}

// IndexHandler handles the index_repository MCP tool.
type IndexHandler struct {
	jobs JobService
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(svc JobService) *IndexHandler {
	return &IndexHandler{jobs: svc}
}

// Handle submits a summarization job.
func (h *IndexHandler) Handle(_ context.Context, _ *mcp.CallToolRequest, args RepositoryArgument) (*mcp.CallToolResult, any, error) {
	sub, err := h.jobs.Submit(args.URL)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrMissingURL):
			return errorResult("URL cannot be empty"), nil, nil
		case errors.Is(err, jobs.ErrInvalidURL):
			return errorResult(fmt.Sprintf("Invalid repository URL: %s", args.URL)), nil, nil
		case errors.Is(err, jobs.ErrJobInProgress):
			return errorResult(fmt.Sprintf("A job for %s is already in progress", sub.Repository)), nil, nil
		default:
			return errorResult(fmt.Sprintf("Failed to submit job: %s", err)), nil, nil
		}
	}

	if !sub.Accepted {
		return textResult(fmt.Sprintf("Repository %s already processed (status: %s)", sub.Repository, sub.Status)), nil, nil
	}
	return textResult(fmt.Sprintf("Summarization of %s submitted. Use job_status to follow progress.", sub.Repository)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *IndexHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "index_repository",
		Description: "Clone a git repository, summarize every file and directory with a language model, and index the summaries",
	}
}

// RegisterIndexTool registers the index_repository tool with an MCP server.
func RegisterIndexTool(server *mcp.Server, svc JobService) {
	handler := NewIndexHandler(svc)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// StatusHandler handles the job_status MCP tool.
type StatusHandler struct {
	jobs JobService
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(svc JobService) *StatusHandler {
	return &StatusHandler{jobs: svc}
}

// Handle reports the stored job status.
func (h *StatusHandler) Handle(ctx context.Context, _ *mcp.CallToolRequest, args RepositoryArgument) (*mcp.CallToolResult, any, error) {
	rec, found, err := h.jobs.Status(ctx, args.URL)
	if err != nil {
		if errors.Is(err, jobs.ErrMissingURL) {
			return errorResult("URL cannot be empty"), nil, nil
		}
		if errors.Is(err, jobs.ErrInvalidURL) {
			return errorResult(fmt.Sprintf("Invalid repository URL: %s", args.URL)), nil, nil
		}
		return errorResult(fmt.Sprintf("Failed to read job status: %s", err)), nil, nil
	}
	if !found {
		return textResult(fmt.Sprintf("No job found for %s", strings.TrimSpace(args.URL))), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Repository**: %s\n", rec.Repository))
	sb.WriteString(fmt.Sprintf("**Status**: %s\n", rec.Status))
	if rec.Commit != "" {
		sb.WriteString(fmt.Sprintf("**Commit**: %s\n", rec.Commit))
	}
	if rec.Reason != "" {
		sb.WriteString(fmt.Sprintf("**Reason**: %s\n", rec.Reason))
	}
	sb.WriteString(fmt.Sprintf("**Updated**: %s\n", rec.UpdatedAt.Format(time.RFC3339)))

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *StatusHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "job_status",
		Description: "Get the summarization job status of a repository",
	}
}

// RegisterStatusTool registers the job_status tool with an MCP server.
func RegisterStatusTool(server *mcp.Server, svc JobService) {
	handler := NewStatusHandler(svc)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
