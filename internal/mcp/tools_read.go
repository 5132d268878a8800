package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/sha1n/relic-digest/internal/gitrepos"
)

// GetSummaryArgument defines get_summary parameters.
type GetSummaryArgument struct {
	Repository string `json:"repository" jsonschema_description:"Repository (e.g., org/repo) or its URL"`
	Path       string `json:"path,omitempty" jsonschema_description:"File or directory path relative to the repository root; empty for the repository summary"`
}

// GetSummaryHandler handles the get_summary MCP tool.
type GetSummaryHandler struct {
	index     SummaryIndex
	namespace string
	target    string
}

// NewGetSummaryHandler creates a new get_summary handler.
func NewGetSummaryHandler(idx SummaryIndex, namespace, target string) *GetSummaryHandler {
	return &GetSummaryHandler{
		index:     idx,
		namespace: namespace,
		target:    target,
	}
}

// Handle looks a summary up by its deterministic document id.
func (h *GetSummaryHandler) Handle(_ context.Context, _ *mcp.CallToolRequest, args GetSummaryArgument) (*mcp.CallToolResult, any, error) {
	repository := strings.TrimSpace(args.Repository)
	if repository == "" {
		return errorResult("Repository cannot be empty"), nil, nil
	}
	if gitrepos.IsValidRepositoryURL(repository) {
		repo, err := gitrepos.ParseRepositoryURL(repository)
		if err != nil {
			return errorResult(fmt.Sprintf("Invalid repository URL: %s", repository)), nil, nil
		}
		repository = repo.ID()
	}

	if err := validatePath(args.Path); err != nil {
		return errorResult(fmt.Sprintf("Invalid path: %s", err)), nil, nil
	}

	path := domain.ParsePathKey(args.Path)
	id := domain.DocumentID(h.namespace, repository, path)

	hit, found, err := h.index.Get(h.target, id)
	if err != nil {
		return errorResult(fmt.Sprintf("Lookup failed: %s", err)), nil, nil
	}
	if !found {
		return errorResult(fmt.Sprintf("No summary found for %s:%s", repository, displayPath(path.String()))), nil, nil
	}

	return textResult(fmt.Sprintf("## %s:%s\n\n%s\n", repository, displayPath(path.String()), hit.Text)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *GetSummaryHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_summary",
		Description: "Get the summary of a repository, directory or file",
	}
}

// RegisterGetSummaryTool registers the get_summary tool with an MCP server.
func RegisterGetSummaryTool(server *mcp.Server, idx SummaryIndex, namespace, target string) {
	handler := NewGetSummaryHandler(idx, namespace, target)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// validatePath rejects absolute paths and traversal outside the repository.
func validatePath(path string) error {
	if strings.HasPrefix(path, "/") && path != "/" {
		return fmt.Errorf("absolute paths are not allowed")
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return fmt.Errorf("path traversal is not allowed")
		}
	}
	return nil
}
