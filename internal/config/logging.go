package config

import (
	"context"
	"log/slog"
)

const masked = "****"

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == TransportSSE {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", masked)
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}

	logger.InfoContext(ctx, "Config: workspace", "value", s.Workspace)

	if s.LLM.BaseURL != "" {
		logger.InfoContext(ctx, "Config: llm.base_url", "value", s.LLM.BaseURL)
	}
	logger.InfoContext(ctx, "Config: llm.api_key", "value", maskIfSet(s.LLM.APIKey))
	logger.InfoContext(ctx, "Config: llm.primary_model", "value", s.LLM.PrimaryModel)
	logger.InfoContext(ctx, "Config: llm.fallback_model", "value", s.LLM.FallbackModel)
	if s.LLM.RequestsPerSecond > 0 {
		logger.InfoContext(ctx, "Config: llm.requests_per_second", "value", s.LLM.RequestsPerSecond)
	}

	logger.InfoContext(ctx, "Config: index.backends", "value", s.Index.Backends)
	logger.InfoContext(ctx, "Config: index.namespace", "value", s.Index.Namespace)
	logger.InfoContext(ctx, "Config: index.target", "value", s.Index.Target)
	logger.InfoContext(ctx, "Config: index.batch_size", "value", s.Index.BatchSize)

	if s.HasIndexBackend(IndexBackendQdrant) {
		logger.InfoContext(ctx, "Config: qdrant.host", "value", s.Qdrant.Host)
		logger.InfoContext(ctx, "Config: qdrant.port", "value", s.Qdrant.Port)
		logger.InfoContext(ctx, "Config: qdrant.api_key", "value", maskIfSet(s.Qdrant.APIKey))
		logger.InfoContext(ctx, "Config: qdrant.embedding_model", "value", s.Qdrant.EmbeddingModel)
	}

	logger.InfoContext(ctx, "Config: pacing",
		"per_entry", s.Pacing.PerEntry,
		"after_files", s.Pacing.AfterFiles,
		"before_batch", s.Pacing.BeforeBatch)
	logger.InfoContext(ctx, "Config: walker",
		"max_concurrent_files", s.Walker.MaxConcurrentFiles,
		"skip_binary", s.Walker.SkipBinary)

	logger.InfoContext(ctx, "Config: status.backend", "value", s.Status.Backend)
	logger.InfoContext(ctx, "Config: git.backend", "value", s.Git.Backend)

	logger.InfoContext(ctx, "Config: github.lookup", "value", s.GitHub.Lookup)
	if s.GitHub.Lookup {
		logger.InfoContext(ctx, "Config: github.token", "value", maskIfSet(s.GitHub.Token))
		if s.GitHub.APIURL != "" {
			logger.InfoContext(ctx, "Config: github.api_url", "value", s.GitHub.APIURL)
		}
	}

	logger.InfoContext(ctx, "Config: jobs",
		"max_parallel", s.Jobs.MaxParallel,
		"timeout", s.Jobs.Timeout,
		"lock_wait", s.Jobs.LockWait)

	if len(s.Ignore.ExtraPatterns) > 0 {
		logger.InfoContext(ctx, "Config: ignore.extra_patterns", "value", s.Ignore.ExtraPatterns)
	}
}

func maskIfSet(secret string) string {
	if secret == "" {
		return ""
	}
	return masked
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = masked
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", masked),
	)
}

// LLMSettingsLogValue returns a slog.Value for LLMSettings with masked data
func LLMSettingsLogValue(s LLMSettings) slog.Value {
	return slog.GroupValue(
		slog.String("base_url", s.BaseURL),
		slog.String("api_key", maskIfSet(s.APIKey)),
		slog.String("primary_model", s.PrimaryModel),
		slog.String("fallback_model", s.FallbackModel),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.String("workspace", s.Workspace),
		slog.Any("llm", LLMSettingsLogValue(s.LLM)),
		slog.Any("index_backends", s.Index.Backends),
		slog.String("github_token", maskIfSet(s.GitHub.Token)),
		slog.String("qdrant_api_key", maskIfSet(s.Qdrant.APIKey)),
	)
}
