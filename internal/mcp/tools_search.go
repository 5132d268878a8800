package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query      string `json:"query" jsonschema_description:"Natural-language search over file and directory summaries"`
	Repository string `json:"repository,omitempty" jsonschema_description:"Filter by repository (e.g., org/repo)"`
}

// SearchHandler handles the search_summaries MCP tool.
type SearchHandler struct {
	index      SummaryIndex
	target     string
	maxResults int
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(idx SummaryIndex, target string, maxResults int) *SearchHandler {
	return &SearchHandler{
		index:      idx,
		target:     target,
		maxResults: maxResults,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(_ context.Context, _ *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	results, err := h.index.Search(h.target, args.Query, strings.TrimSpace(args.Repository), h.maxResults)
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	if results.Total == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", args.Query)), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", results.Total, args.Query))

	for i, hit := range results.Hits {
		sb.WriteString(fmt.Sprintf("### %d. %s:%s\n", i+1, hit.Repository, displayPath(hit.FilePath)))
		sb.WriteString(fmt.Sprintf("**Score**: %.4f\n\n", hit.Score))
		sb.WriteString(hit.Text)
		sb.WriteString("\n\n")
	}

	if results.Total > uint64(len(results.Hits)) {
		sb.WriteString(fmt.Sprintf("... and %d more results\n", results.Total-uint64(len(results.Hits))))
	}

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_summaries",
		Description: "Search the natural-language summaries of indexed repositories using full-text search",
	}
}

// RegisterSearchTool registers the search_summaries tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, idx SummaryIndex, target string, maxResults int) {
	handler := NewSearchHandler(idx, target, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// displayPath renders the root path as "/".
func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
