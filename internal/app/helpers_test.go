package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sha1n/relic-digest/internal/config"
	"github.com/sha1n/relic-digest/internal/gitrepos"
)

// echoCompleter answers every prompt with a fixed prefix and the prompt's first line.
type echoCompleter struct {
	mu    sync.Mutex
	calls int
}

func (e *echoCompleter) Complete(_ context.Context, prompt string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	first, _, _ := strings.Cut(prompt, "\n")
	return "summary: " + first, nil
}

func (e *echoCompleter) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func noSleep(context.Context, time.Duration) error { return nil }

// testSettings returns valid settings rooted in a temporary workspace.
func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{
		Transport: config.TransportStdio,
		Host:      "localhost",
		Port:      8080,
		Auth:      config.AuthSettings{Type: config.AuthTypeNone},
		Workspace: t.TempDir(),
		LLM: config.LLMSettings{
			APIKey:        "sk-test",
			PrimaryModel:  "gpt-3.5-turbo",
			FallbackModel: "gpt-3.5-turbo-16k",
		},
		Index: config.IndexSettings{
			Backends:   []string{config.IndexBackendBleve},
			Namespace:  "github",
			Target:     "summaries",
			BatchSize:  100,
			MaxResults: 20,
		},
		Walker: config.WalkerSettings{SkipBinary: true},
		Status: config.StatusSettings{Backend: config.StatusBackendFile},
		Git:    config.GitSettings{Backend: config.GitBackendCLI},
		Jobs:   config.JobsSettings{MaxParallel: 2},
	}
}

func testOverrides(cloner *gitrepos.FakeCloner) Overrides {
	completer := &echoCompleter{}
	return Overrides{
		Cloner:   cloner,
		Details:  gitrepos.NoDetails{},
		Primary:  completer,
		Fallback: completer,
		Sleep:    noSleep,
	}
}

func sampleRepo() *gitrepos.FakeCloner {
	return &gitrepos.FakeCloner{
		Commit: "0123456789abcdef",
		Files: map[string]string{
			"README.md":       "# Sample\nA sample repository",
			"cmd/main.go":     "package main\n\nfunc main() {}\n",
			"pkg/util.go":     "package pkg\n\nfunc Add(a, b int) int { return a + b }\n",
			"assets/logo.png": "not really a png",
		},
	}
}
