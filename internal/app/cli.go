package app

import (
	"time"

	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
	RegisterJobFlags(flags)
}

// RegisterJobFlags registers the flags shared by the server and the index command.
func RegisterJobFlags(flags *pflag.FlagSet) {
	flags.StringP("workspace", "w", "", "Directory for clones, locks, status and local indexes")

	flags.String("llm-base-url", "", "OpenAI compatible API base URL")
	flags.String("llm-api-key", "", "API key for the completion models")
	flags.String("llm-primary-model", "", "Primary completion model")
	flags.String("llm-fallback-model", "", "Fallback completion model with a larger context window")
	flags.Float64("llm-requests-per-second", 0, "Completion request rate ceiling (0 = unlimited)")

	flags.StringSlice("index-backends", nil, "Index backends: bleve, qdrant (comma-separated)")
	flags.String("index-namespace", "", "Namespace mixed into document ids")
	flags.String("index-target", "", "Destination index or collection")
	flags.Int("index-batch-size", 0, "Documents per index request")
	flags.Int("index-max-results", 0, "Maximum search results returned by search_summaries")

	flags.String("qdrant-host", "", "Qdrant host")
	flags.Int("qdrant-port", 0, "Qdrant gRPC port")
	flags.String("qdrant-api-key", "", "Qdrant API key")
	flags.Bool("qdrant-use-tls", false, "Use TLS for Qdrant")
	flags.Uint64("qdrant-vector-size", 0, "Embedding vector size")
	flags.String("qdrant-embedding-model", "", "Embedding model")
	flags.String("qdrant-embedding-base-url", "", "Embedding API base URL (defaults to llm-base-url)")
	flags.String("qdrant-embedding-api-key", "", "Embedding API key (defaults to llm-api-key)")

	flags.Duration("pacing-per-entry", 0, "Delay per directory entry before summarizing files")
	flags.Duration("pacing-after-files", 0, "Delay after the file join, before the directory request")
	flags.Duration("pacing-before-batch", 0, "Delay before each index batch")

	flags.Int("walker-max-concurrent-files", 0, "Concurrent file summaries per directory (0 = unlimited)")
	flags.Bool("walker-skip-binary", true, "Skip files with binary content")

	flags.String("status-backend", "", "Status store backend: file or sqlite")
	flags.String("git-backend", "", "Clone backend: cli or go-git")

	flags.Bool("github-lookup", true, "Look repository details up on GitHub before cloning")
	flags.String("github-token", "", "GitHub token for the details lookup")
	flags.String("github-api-url", "", "GitHub API URL (GitHub Enterprise)")

	flags.Int("jobs-max-parallel", 0, "Maximum concurrently running jobs")
	flags.Duration("jobs-timeout", time.Duration(0), "Per-job timeout (0 = none)")
	flags.Duration("jobs-lock-wait", time.Duration(0), "How long to wait for a busy repository lock")

	flags.StringSlice("ignore-extra-patterns", nil, "Additional ignore globs (comma-separated)")
}
