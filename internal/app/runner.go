package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-digest/internal/config"
	mcputil "github.com/sha1n/relic-digest/internal/mcp"
	"github.com/spf13/pflag"
)

// ServerName is the MCP implementation name.
const ServerName = "relic-digest"

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	BuildServices     func(context.Context, *config.Settings) (*Services, error)
	CreateServer      func(*config.Settings, *Services, string) *mcp.Server
	StartSSEServer    func(context.Context, *mcp.Server, *Services, *config.Settings) error
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
	Output            io.Writer     // Optional: where the index command reports; defaults to stdout
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		BuildServices:  BuildServices,
		CreateServer:   CreateMCPServer,
		StartSSEServer: ServeSSE,
	}
}

// setup loads, validates and logs settings, then wires the services.
func setup(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) (*config.Settings, *Services, error) {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting RELIC digest", "version", version)
	config.Log(settings)

	services, err := params.BuildServices(ctx, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build services: %w", err)
	}
	return settings, services, nil
}

func closeServices(services *Services) {
	if services == nil {
		return
	}
	if err := services.Close(); err != nil {
		slog.Error("Failed to close services", "error", err)
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, services, err := setup(ctx, params, flags, version)
	if err != nil {
		return err
	}
	defer closeServices(services)

	mcpServer := params.CreateServer(settings, services, version)

	// Start server
	if settings.Transport == config.TransportStdio {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(ctx, mcpServer, services, settings)
}

// RunIndexWithDeps summarizes a single repository in the foreground and reports the result.
func RunIndexWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version, repoURL string) error {
	_, services, err := setup(ctx, params, flags, version)
	if err != nil {
		return err
	}
	defer closeServices(services)

	out := params.Output
	if out == nil {
		out = os.Stdout
	}

	result, err := services.Orchestrator.Run(ctx, repoURL)
	if err != nil {
		return err
	}

	if result.Skipped {
		_, _ = fmt.Fprintf(out, "%s already processed (status: %s)\n", result.Repository, result.Status)
		return nil
	}
	_, _ = fmt.Fprintf(out, "%s %s (commit: %s)\n%s\n", result.Repository, result.Status, result.Commit, result.Summary)
	return nil
}

// CreateMCPServer creates the MCP server with registered tools
func CreateMCPServer(settings *config.Settings, services *Services, version string) *mcp.Server {
	cfg := mcputil.ServerConfig{
		Name:        ServerName,
		Version:     version,
		Namespace:   settings.Index.Namespace,
		IndexTarget: settings.Index.Target,
		MaxResults:  settings.Index.MaxResults,
	}
	if services != nil {
		if services.Jobs != nil {
			cfg.Jobs = services.Jobs
		}
		if services.Summaries != nil {
			cfg.Summaries = services.Summaries
		}
	}
	return mcputil.CreateServer(cfg)
}

// ServeSSE serves MCP over SSE together with the job, health and metrics endpoints.
func ServeSSE(ctx context.Context, s *mcp.Server, services *Services, settings *config.Settings) error {
	var jobSvc JobService
	if services != nil && services.Jobs != nil {
		jobSvc = services.Jobs
	}
	srv, err := NewSSEServer(s, jobSvc, services.gatherer(), settings)
	if err != nil {
		return err
	}
	return StartSSEServer(ctx, srv, settings)
}
