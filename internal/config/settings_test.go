package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// validSettings returns settings that pass ValidateSettings.
func validSettings() *Settings {
	return &Settings{
		Transport: TransportStdio,
		Auth:      AuthSettings{Type: AuthTypeNone},
		Workspace: "/tmp/relic-digest",
		LLM: LLMSettings{
			APIKey:        "sk-test",
			PrimaryModel:  "gpt-3.5-turbo",
			FallbackModel: "gpt-3.5-turbo-16k",
		},
		Index: IndexSettings{
			Backends:   []string{IndexBackendBleve},
			Namespace:  "github",
			Target:     "summaries",
			BatchSize:  100,
			MaxResults: 20,
		},
		Qdrant: QdrantSettings{
			Port:           6334,
			VectorSize:     1536,
			EmbeddingModel: "text-embedding-3-small",
		},
		Pacing: PacingSettings{
			PerEntry:    40 * time.Millisecond,
			AfterFiles:  40 * time.Millisecond,
			BeforeBatch: 200 * time.Millisecond,
		},
		Status: StatusSettings{Backend: StatusBackendFile},
		Git:    GitSettings{Backend: GitBackendCLI},
		Jobs:   JobsSettings{MaxParallel: 2},
	}
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("llm.api_key"); got != "RELIC_DIGEST_LLM_API_KEY" {
		t.Errorf("Expected RELIC_DIGEST_LLM_API_KEY, got %s", got)
	}
	if got := EnvName("port"); got != "RELIC_DIGEST_PORT" {
		t.Errorf("Expected RELIC_DIGEST_PORT, got %s", got)
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	clearEnv(t, "RELIC_DIGEST_PORT", "RELIC_DIGEST_AUTH_TYPE", "RELIC_DIGEST_INDEX_BACKENDS", "RELIC_DIGEST_WORKSPACE")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", settings.Port)
	}
	if settings.Auth.Type != AuthTypeNone {
		t.Errorf("Expected default auth type '%s', got '%s'", AuthTypeNone, settings.Auth.Type)
	}
	if settings.Transport != TransportStdio {
		t.Errorf("Expected default transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Host != "0.0.0.0" {
		t.Errorf("Expected default host '0.0.0.0', got '%s'", settings.Host)
	}
	if !strings.HasSuffix(settings.Workspace, ".relic-digest") {
		t.Errorf("Expected default workspace under .relic-digest, got '%s'", settings.Workspace)
	}
	if settings.LLM.PrimaryModel != "gpt-3.5-turbo" {
		t.Errorf("Expected primary model gpt-3.5-turbo, got '%s'", settings.LLM.PrimaryModel)
	}
	if settings.LLM.FallbackModel != "gpt-3.5-turbo-16k" {
		t.Errorf("Expected fallback model gpt-3.5-turbo-16k, got '%s'", settings.LLM.FallbackModel)
	}
	if len(settings.Index.Backends) != 1 || settings.Index.Backends[0] != IndexBackendBleve {
		t.Errorf("Expected index backends [bleve], got %v", settings.Index.Backends)
	}
	if settings.Index.Namespace != "github" {
		t.Errorf("Expected namespace github, got '%s'", settings.Index.Namespace)
	}
	if settings.Index.BatchSize != 100 {
		t.Errorf("Expected batch size 100, got %d", settings.Index.BatchSize)
	}
	if settings.Pacing.PerEntry != 40*time.Millisecond {
		t.Errorf("Expected per entry pacing 40ms, got %v", settings.Pacing.PerEntry)
	}
	if settings.Pacing.AfterFiles != 40*time.Millisecond {
		t.Errorf("Expected after files pacing 40ms, got %v", settings.Pacing.AfterFiles)
	}
	if settings.Pacing.BeforeBatch != 200*time.Millisecond {
		t.Errorf("Expected before batch pacing 200ms, got %v", settings.Pacing.BeforeBatch)
	}
	if !settings.Walker.SkipBinary {
		t.Error("Expected skip binary to default to true")
	}
	if settings.Status.Backend != StatusBackendFile {
		t.Errorf("Expected status backend file, got '%s'", settings.Status.Backend)
	}
	if settings.Git.Backend != GitBackendCLI {
		t.Errorf("Expected git backend cli, got '%s'", settings.Git.Backend)
	}
	if !settings.GitHub.Lookup {
		t.Error("Expected github lookup to default to true")
	}
	if settings.Jobs.MaxParallel != 2 {
		t.Errorf("Expected max parallel jobs 2, got %d", settings.Jobs.MaxParallel)
	}
	if settings.Qdrant.Port != 6334 {
		t.Errorf("Expected qdrant port 6334, got %d", settings.Qdrant.Port)
	}
}

func TestLoadSettings_EnvVars(t *testing.T) {
	t.Setenv("RELIC_DIGEST_PORT", "9090")
	t.Setenv("RELIC_DIGEST_AUTH_TYPE", "basic")
	t.Setenv("RELIC_DIGEST_AUTH_BASIC_USERNAME", "admin")
	t.Setenv("RELIC_DIGEST_LLM_API_KEY", "sk-env")
	t.Setenv("RELIC_DIGEST_INDEX_BATCH_SIZE", "25")
	t.Setenv("RELIC_DIGEST_PACING_BEFORE_BATCH", "1s")
	t.Setenv("RELIC_DIGEST_STATUS_BACKEND", "sqlite")
	t.Setenv("RELIC_DIGEST_JOBS_TIMEOUT", "30m")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", settings.Port)
	}
	if settings.Auth.Type != AuthTypeBasic {
		t.Errorf("Expected auth type '%s', got '%s'", AuthTypeBasic, settings.Auth.Type)
	}
	if settings.Auth.Basic.Username != "admin" {
		t.Errorf("Expected username 'admin', got '%s'", settings.Auth.Basic.Username)
	}
	if settings.LLM.APIKey != "sk-env" {
		t.Errorf("Expected llm api key from env, got '%s'", settings.LLM.APIKey)
	}
	if settings.Index.BatchSize != 25 {
		t.Errorf("Expected batch size 25, got %d", settings.Index.BatchSize)
	}
	if settings.Pacing.BeforeBatch != time.Second {
		t.Errorf("Expected before batch 1s, got %v", settings.Pacing.BeforeBatch)
	}
	if settings.Status.Backend != StatusBackendSQLite {
		t.Errorf("Expected status backend sqlite, got '%s'", settings.Status.Backend)
	}
	if settings.Jobs.Timeout != 30*time.Minute {
		t.Errorf("Expected jobs timeout 30m, got %v", settings.Jobs.Timeout)
	}
}

func TestLoadSettings_WellKnownEnvFallbacks(t *testing.T) {
	clearEnv(t, "RELIC_DIGEST_LLM_API_KEY", "RELIC_DIGEST_GITHUB_TOKEN")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GITHUB_TOKEN", "ghp-token")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.LLM.APIKey != "sk-openai" {
		t.Errorf("Expected OPENAI_API_KEY fallback, got '%s'", settings.LLM.APIKey)
	}
	if settings.GitHub.Token != "ghp-token" {
		t.Errorf("Expected GITHUB_TOKEN fallback, got '%s'", settings.GitHub.Token)
	}
}

func TestLoadSettings_PrefixedEnvWinsOverFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("RELIC_DIGEST_LLM_API_KEY", "sk-relic")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.LLM.APIKey != "sk-relic" {
		t.Errorf("Expected prefixed env to win, got '%s'", settings.LLM.APIKey)
	}
}

func TestLoadSettings_EmbeddingDefaultsToLLM(t *testing.T) {
	t.Setenv("RELIC_DIGEST_LLM_API_KEY", "sk-llm")
	t.Setenv("RELIC_DIGEST_LLM_BASE_URL", "http://localhost:11434/v1")
	clearEnv(t, "RELIC_DIGEST_QDRANT_EMBEDDING_API_KEY", "RELIC_DIGEST_QDRANT_EMBEDDING_BASE_URL")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Qdrant.EmbeddingAPIKey != "sk-llm" {
		t.Errorf("Expected embedding key to default to llm key, got '%s'", settings.Qdrant.EmbeddingAPIKey)
	}
	if settings.Qdrant.EmbeddingBaseURL != "http://localhost:11434/v1" {
		t.Errorf("Expected embedding base url to default to llm base url, got '%s'", settings.Qdrant.EmbeddingBaseURL)
	}
}

func TestLoadSettings_ListEnvVars(t *testing.T) {
	t.Setenv("RELIC_DIGEST_AUTH_API_KEYS", "key1, key2,key3")
	t.Setenv("RELIC_DIGEST_INDEX_BACKENDS", "Bleve, qdrant")
	t.Setenv("RELIC_DIGEST_IGNORE_EXTRA_PATTERNS", "**/vendor,, **/*.lock ")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	expectedKeys := []string{"key1", "key2", "key3"}
	if len(settings.Auth.APIKeys) != len(expectedKeys) {
		t.Fatalf("Expected %d API keys, got %v", len(expectedKeys), settings.Auth.APIKeys)
	}
	for i, k := range expectedKeys {
		if settings.Auth.APIKeys[i] != k {
			t.Errorf("Expected %s, got '%s'", k, settings.Auth.APIKeys[i])
		}
	}

	if len(settings.Index.Backends) != 2 || settings.Index.Backends[0] != "bleve" || settings.Index.Backends[1] != "qdrant" {
		t.Errorf("Expected backends [bleve qdrant], got %v", settings.Index.Backends)
	}

	if len(settings.Ignore.ExtraPatterns) != 2 || settings.Ignore.ExtraPatterns[1] != "**/*.lock" {
		t.Errorf("Expected trimmed non-empty patterns, got %v", settings.Ignore.ExtraPatterns)
	}
}

func TestLoadSettings_APIKeys_SingleKey(t *testing.T) {
	t.Setenv("RELIC_DIGEST_AUTH_API_KEYS", "singlekey")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if len(settings.Auth.APIKeys) != 1 {
		t.Fatalf("Expected 1 API key, got %d", len(settings.Auth.APIKeys))
	}
	if settings.Auth.APIKeys[0] != "singlekey" {
		t.Errorf("Expected singlekey, got '%s'", settings.Auth.APIKeys[0])
	}
}

func TestLoadSettings_EnvFile(t *testing.T) {
	content := []byte("host=127.0.0.2\nport=7000")
	tmpEnv := ".env"
	if err := os.WriteFile(tmpEnv, content, 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}
	defer func() { _ = os.Remove(tmpEnv) }()

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Host != "127.0.0.2" {
		t.Errorf("Expected host 127.0.0.2, got %s", settings.Host)
	}
	if settings.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", settings.Port)
	}
}

func TestLoadSettings_InvalidConfig(t *testing.T) {
	t.Setenv("RELIC_DIGEST_PORT", "not-a-number")

	_, err := LoadSettings()
	if err == nil {
		t.Fatal("Expected error for invalid port type")
	}
}

func TestLoadSettings_WorkspaceExpandHome(t *testing.T) {
	t.Setenv("RELIC_DIGEST_WORKSPACE", "~/digest")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if settings.Workspace != filepath.Join(home, "digest") {
		t.Errorf("Expected expanded workspace, got '%s'", settings.Workspace)
	}
}

func TestLoadSettingsWithFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("RELIC_DIGEST_PORT", "9090")
	t.Setenv("RELIC_DIGEST_TRANSPORT", "sse")
	t.Setenv("RELIC_DIGEST_INDEX_BATCH_SIZE", "10")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("transport", "", "")
	flags.Int("index-batch-size", 0, "")
	_ = flags.Set("port", "7777")
	_ = flags.Set("transport", "stdio")
	_ = flags.Set("index-batch-size", "50")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 7777 {
		t.Errorf("Expected CLI port 7777, got %d", settings.Port)
	}
	if settings.Transport != TransportStdio {
		t.Errorf("Expected CLI transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Index.BatchSize != 50 {
		t.Errorf("Expected CLI batch size 50, got %d", settings.Index.BatchSize)
	}
}

func TestLoadSettingsWithFlags_UnsetFlagKeepsEnv(t *testing.T) {
	t.Setenv("RELIC_DIGEST_HOST", "192.168.1.1")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("host", "", "")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Host != "192.168.1.1" {
		t.Errorf("Expected env host '192.168.1.1', got '%s'", settings.Host)
	}
}

func TestLoadSettingsWithFlags_MissingFlagsAreSkipped(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("transport", "", "")
	_ = flags.Set("transport", "sse")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Transport != TransportSSE {
		t.Errorf("Expected transport 'sse', got '%s'", settings.Transport)
	}
}

func TestLoadSettingsWithFlags_DomainFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("llm-primary-model", "", "")
	flags.StringSlice("index-backends", nil, "")
	flags.Duration("pacing-per-entry", 0, "")
	flags.Bool("walker-skip-binary", true, "")
	flags.String("git-backend", "", "")
	flags.Bool("github-lookup", true, "")

	_ = flags.Set("llm-primary-model", "gpt-4o-mini")
	_ = flags.Set("index-backends", "bleve,qdrant")
	_ = flags.Set("pacing-per-entry", "5ms")
	_ = flags.Set("walker-skip-binary", "false")
	_ = flags.Set("git-backend", "go-git")
	_ = flags.Set("github-lookup", "false")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.LLM.PrimaryModel != "gpt-4o-mini" {
		t.Errorf("Expected primary model gpt-4o-mini, got '%s'", settings.LLM.PrimaryModel)
	}
	if !settings.HasIndexBackend(IndexBackendQdrant) || !settings.HasIndexBackend(IndexBackendBleve) {
		t.Errorf("Expected bleve and qdrant backends, got %v", settings.Index.Backends)
	}
	if settings.Pacing.PerEntry != 5*time.Millisecond {
		t.Errorf("Expected per entry 5ms, got %v", settings.Pacing.PerEntry)
	}
	if settings.Walker.SkipBinary {
		t.Error("Expected skip binary false")
	}
	if settings.Git.Backend != GitBackendGoGit {
		t.Errorf("Expected git backend go-git, got '%s'", settings.Git.Backend)
	}
	if settings.GitHub.Lookup {
		t.Error("Expected github lookup false")
	}
}

// --- ValidateSettings Tests ---

func TestValidateSettings_Valid(t *testing.T) {
	if err := ValidateSettings(validSettings()); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateSettings_ValidAuth(t *testing.T) {
	tests := []struct {
		name string
		auth AuthSettings
	}{
		{"none", AuthSettings{Type: AuthTypeNone}},
		{"empty type", AuthSettings{}},
		{"basic", AuthSettings{Type: AuthTypeBasic, Basic: BasicAuthSettings{Username: "u", Password: "p"}}},
		{"apikey", AuthSettings{Type: AuthTypeAPIKey, APIKeys: []string{"k"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.Auth = tt.auth
			if err := ValidateSettings(s); err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Settings)
		expected string
	}{
		{"transport", func(s *Settings) { s.Transport = "http" }, "transport must be"},
		{"none with credentials", func(s *Settings) { s.Auth.APIKeys = []string{"k"} }, "incompatible with auth credentials"},
		{"basic missing password", func(s *Settings) {
			s.Auth = AuthSettings{Type: AuthTypeBasic, Basic: BasicAuthSettings{Username: "u"}}
		}, "requires both username and password"},
		{"basic with api keys", func(s *Settings) {
			s.Auth = AuthSettings{Type: AuthTypeBasic, Basic: BasicAuthSettings{Username: "u", Password: "p"}, APIKeys: []string{"k"}}
		}, "mutually exclusive with auth-api-keys"},
		{"apikey without keys", func(s *Settings) { s.Auth = AuthSettings{Type: AuthTypeAPIKey} }, "requires at least one API key"},
		{"apikey with basic", func(s *Settings) {
			s.Auth = AuthSettings{Type: AuthTypeAPIKey, APIKeys: []string{"k"}, Basic: BasicAuthSettings{Username: "u"}}
		}, "mutually exclusive with basic auth credentials"},
		{"unknown auth", func(s *Settings) { s.Auth.Type = "oauth" }, "unknown auth-type"},
		{"workspace", func(s *Settings) { s.Workspace = "" }, "workspace cannot be empty"},
		{"llm key", func(s *Settings) { s.LLM.APIKey = "" }, "llm-api-key is required"},
		{"primary model", func(s *Settings) { s.LLM.PrimaryModel = "" }, "llm-primary-model"},
		{"fallback model", func(s *Settings) { s.LLM.FallbackModel = "" }, "llm-fallback-model"},
		{"negative rps", func(s *Settings) { s.LLM.RequestsPerSecond = -1 }, "llm-requests-per-second"},
		{"no backends", func(s *Settings) { s.Index.Backends = nil }, "at least one index backend"},
		{"unknown backend", func(s *Settings) { s.Index.Backends = []string{"elastic"} }, "unknown index backend: elastic"},
		{"namespace", func(s *Settings) { s.Index.Namespace = "" }, "index-namespace"},
		{"target", func(s *Settings) { s.Index.Target = "" }, "index-target"},
		{"batch size", func(s *Settings) { s.Index.BatchSize = 0 }, "index-batch-size must be positive"},
		{"max results", func(s *Settings) { s.Index.MaxResults = 0 }, "index-max-results"},
		{"qdrant host", func(s *Settings) { s.Index.Backends = []string{IndexBackendQdrant} }, "qdrant-host is required"},
		{"qdrant port", func(s *Settings) {
			s.Index.Backends = []string{IndexBackendQdrant}
			s.Qdrant.Host = "localhost"
			s.Qdrant.Port = 0
		}, "invalid qdrant-port"},
		{"qdrant vector size", func(s *Settings) {
			s.Index.Backends = []string{IndexBackendQdrant}
			s.Qdrant.Host = "localhost"
			s.Qdrant.VectorSize = 0
		}, "qdrant-vector-size"},
		{"negative pacing", func(s *Settings) { s.Pacing.AfterFiles = -time.Millisecond }, "pacing delays cannot be negative"},
		{"walker concurrency", func(s *Settings) { s.Walker.MaxConcurrentFiles = -1 }, "walker-max-concurrent-files"},
		{"status backend", func(s *Settings) { s.Status.Backend = "redis" }, "unknown status-backend"},
		{"git backend", func(s *Settings) { s.Git.Backend = "svn" }, "unknown git-backend"},
		{"max parallel", func(s *Settings) { s.Jobs.MaxParallel = 0 }, "jobs-max-parallel"},
		{"timeout", func(s *Settings) { s.Jobs.Timeout = -time.Second }, "jobs-timeout"},
		{"lock wait", func(s *Settings) { s.Jobs.LockWait = -time.Second }, "jobs-lock-wait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.expected) {
				t.Errorf("Expected error containing %q, got: %v", tt.expected, err)
			}
		})
	}
}

func TestValidateSettings_QdrantValid(t *testing.T) {
	s := validSettings()
	s.Index.Backends = []string{IndexBackendBleve, IndexBackendQdrant}
	s.Qdrant.Host = "localhost"

	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestExpandHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/foo", filepath.Join(home, "foo")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
	}
	for _, tt := range tests {
		if got := expandHomeDir(tt.input); got != tt.expected {
			t.Errorf("expandHomeDir(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		env      string
		expected []string
	}{
		{"nil", nil, "", nil},
		{"from env", nil, "a, b", []string{"a", "b"}},
		{"joined single value", []string{"a,b"}, "a,b", []string{"a", "b"}},
		{"values win over env", []string{"x", "y"}, "a,b", []string{"x", "y"}},
		{"drops empty", []string{" ", "a", ""}, "", []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitList(tt.values, tt.env)
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}
