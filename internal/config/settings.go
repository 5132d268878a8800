package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by LoadSettings.
const EnvPrefix = "RELIC_DIGEST"

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Transport constants
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Backend constants
const (
	IndexBackendBleve  = "bleve"
	IndexBackendQdrant = "qdrant"

	StatusBackendFile   = "file"
	StatusBackendSQLite = "sqlite"

	GitBackendCLI   = "cli"
	GitBackendGoGit = "go-git"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LLMSettings configures the two completion tiers.
type LLMSettings struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	PrimaryModel      string  `mapstructure:"primary_model"`
	FallbackModel     string  `mapstructure:"fallback_model"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// IndexSettings configures where summaries are indexed.
type IndexSettings struct {
	Backends   []string `mapstructure:"backends"`
	Namespace  string   `mapstructure:"namespace"`
	Target     string   `mapstructure:"target"`
	BatchSize  int      `mapstructure:"batch_size"`
	MaxResults int      `mapstructure:"max_results"`
}

// QdrantSettings configures the vector index backend.
type QdrantSettings struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	APIKey           string `mapstructure:"api_key"`
	UseTLS           bool   `mapstructure:"use_tls"`
	VectorSize       uint64 `mapstructure:"vector_size"`
	EmbeddingModel   string `mapstructure:"embedding_model"`
	EmbeddingBaseURL string `mapstructure:"embedding_base_url"`
	EmbeddingAPIKey  string `mapstructure:"embedding_api_key"`
}

// PacingSettings holds the fixed delays applied during a traversal.
type PacingSettings struct {
	PerEntry    time.Duration `mapstructure:"per_entry"`
	AfterFiles  time.Duration `mapstructure:"after_files"`
	BeforeBatch time.Duration `mapstructure:"before_batch"`
}

// WalkerSettings configures the directory walker.
type WalkerSettings struct {
	MaxConcurrentFiles int  `mapstructure:"max_concurrent_files"`
	SkipBinary         bool `mapstructure:"skip_binary"`
}

// StatusSettings configures job status persistence.
type StatusSettings struct {
	Backend string `mapstructure:"backend"`
}

// GitSettings configures repository cloning.
type GitSettings struct {
	Backend string `mapstructure:"backend"`
}

// GitHubSettings configures the repository details lookup.
type GitHubSettings struct {
	Lookup bool   `mapstructure:"lookup"`
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
}

// JobsSettings configures the background job runner.
type JobsSettings struct {
	MaxParallel int           `mapstructure:"max_parallel"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LockWait    time.Duration `mapstructure:"lock_wait"`
}

// IgnoreSettings extends the built-in ignore patterns.
type IgnoreSettings struct {
	ExtraPatterns []string `mapstructure:"extra_patterns"`
}

// Settings application settings
type Settings struct {
	Transport string         `mapstructure:"transport"`
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	Auth      AuthSettings   `mapstructure:"auth"`
	Workspace string         `mapstructure:"workspace"`
	LLM       LLMSettings    `mapstructure:"llm"`
	Index     IndexSettings  `mapstructure:"index"`
	Qdrant    QdrantSettings `mapstructure:"qdrant"`
	Pacing    PacingSettings `mapstructure:"pacing"`
	Walker    WalkerSettings `mapstructure:"walker"`
	Status    StatusSettings `mapstructure:"status"`
	Git       GitSettings    `mapstructure:"git"`
	GitHub    GitHubSettings `mapstructure:"github"`
	Jobs      JobsSettings   `mapstructure:"jobs"`
	Ignore    IgnoreSettings `mapstructure:"ignore"`
}

// HasIndexBackend reports whether backend is enabled.
func (s *Settings) HasIndexBackend(backend string) bool {
	for _, b := range s.Index.Backends {
		if b == backend {
			return true
		}
	}
	return false
}

// binding maps a settings key to its CLI flag. The env var is derived from the key.
type binding struct {
	key  string
	flag string
}

var bindings = []binding{
	{"transport", "transport"},
	{"host", "host"},
	{"port", "port"},
	{"auth.type", "auth-type"},
	{"auth.basic.username", "auth-basic-username"},
	{"auth.basic.password", "auth-basic-password"},
	{"auth.api_keys", "auth-api-keys"},
	{"workspace", "workspace"},
	{"llm.base_url", "llm-base-url"},
	{"llm.api_key", "llm-api-key"},
	{"llm.primary_model", "llm-primary-model"},
	{"llm.fallback_model", "llm-fallback-model"},
	{"llm.requests_per_second", "llm-requests-per-second"},
	{"index.backends", "index-backends"},
	{"index.namespace", "index-namespace"},
	{"index.target", "index-target"},
	{"index.batch_size", "index-batch-size"},
	{"index.max_results", "index-max-results"},
	{"qdrant.host", "qdrant-host"},
	{"qdrant.port", "qdrant-port"},
	{"qdrant.api_key", "qdrant-api-key"},
	{"qdrant.use_tls", "qdrant-use-tls"},
	{"qdrant.vector_size", "qdrant-vector-size"},
	{"qdrant.embedding_model", "qdrant-embedding-model"},
	{"qdrant.embedding_base_url", "qdrant-embedding-base-url"},
	{"qdrant.embedding_api_key", "qdrant-embedding-api-key"},
	{"pacing.per_entry", "pacing-per-entry"},
	{"pacing.after_files", "pacing-after-files"},
	{"pacing.before_batch", "pacing-before-batch"},
	{"walker.max_concurrent_files", "walker-max-concurrent-files"},
	{"walker.skip_binary", "walker-skip-binary"},
	{"status.backend", "status-backend"},
	{"git.backend", "git-backend"},
	{"github.lookup", "github-lookup"},
	{"github.token", "github-token"},
	{"github.api_url", "github-api-url"},
	{"jobs.max_parallel", "jobs-max-parallel"},
	{"jobs.timeout", "jobs-timeout"},
	{"jobs.lock_wait", "jobs-lock-wait"},
	{"ignore.extra_patterns", "ignore-extra-patterns"},
}

// EnvName returns the environment variable bound to a settings key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", TransportStdio)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)
	v.SetDefault("workspace", defaultWorkspace())

	v.SetDefault("llm.primary_model", "gpt-3.5-turbo")
	v.SetDefault("llm.fallback_model", "gpt-3.5-turbo-16k")
	v.SetDefault("llm.requests_per_second", 0)

	v.SetDefault("index.backends", []string{IndexBackendBleve})
	v.SetDefault("index.namespace", "github")
	v.SetDefault("index.target", "summaries")
	v.SetDefault("index.batch_size", 100)
	v.SetDefault("index.max_results", 20)

	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.vector_size", 1536)
	v.SetDefault("qdrant.embedding_model", "text-embedding-3-small")

	v.SetDefault("pacing.per_entry", 40*time.Millisecond)
	v.SetDefault("pacing.after_files", 40*time.Millisecond)
	v.SetDefault("pacing.before_batch", 200*time.Millisecond)

	v.SetDefault("walker.max_concurrent_files", 0)
	v.SetDefault("walker.skip_binary", true)

	v.SetDefault("status.backend", StatusBackendFile)
	v.SetDefault("git.backend", GitBackendCLI)
	v.SetDefault("github.lookup", true)

	v.SetDefault("jobs.max_parallel", 2)
	v.SetDefault("jobs.timeout", time.Duration(0))
	v.SetDefault("jobs.lock_wait", time.Duration(0))

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		_ = v.BindEnv(b.key, EnvName(b.key))
	}
	// Well-known fallbacks
	_ = v.BindEnv("llm.api_key", EnvName("llm.api_key"), "OPENAI_API_KEY")
	_ = v.BindEnv("github.token", EnvName("github.token"), "GITHUB_TOKEN")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for _, b := range bindings {
			if f := flags.Lookup(b.flag); f != nil {
				_ = v.BindPFlag(b.key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Auth.APIKeys = splitList(settings.Auth.APIKeys, os.Getenv(EnvName("auth.api_keys")))
	settings.Index.Backends = splitList(settings.Index.Backends, os.Getenv(EnvName("index.backends")))
	settings.Ignore.ExtraPatterns = splitList(settings.Ignore.ExtraPatterns, os.Getenv(EnvName("ignore.extra_patterns")))

	for i := range settings.Index.Backends {
		settings.Index.Backends[i] = strings.ToLower(settings.Index.Backends[i])
	}

	if settings.Qdrant.EmbeddingAPIKey == "" {
		settings.Qdrant.EmbeddingAPIKey = settings.LLM.APIKey
	}
	if settings.Qdrant.EmbeddingBaseURL == "" {
		settings.Qdrant.EmbeddingBaseURL = settings.LLM.BaseURL
	}

	// Expand home directory in workspace
	settings.Workspace = expandHomeDir(settings.Workspace)

	return &settings, nil
}

// splitList handles list values given as a comma-separated env var, then trims
// and drops empty items.
func splitList(values []string, env string) []string {
	if env != "" {
		if len(values) == 0 || (len(values) == 1 && strings.Contains(values[0], ",")) {
			values = strings.Split(env, ",")
		}
	}

	var result []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

// defaultWorkspace returns the default workspace directory
func defaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relic-digest"
	}
	return filepath.Join(home, ".relic-digest")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case TransportStdio, TransportSSE:
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if err := validateAuthSettings(&s.Auth); err != nil {
		return err
	}

	if s.Workspace == "" {
		return errors.New("workspace cannot be empty")
	}

	if err := validateLLMSettings(&s.LLM); err != nil {
		return err
	}

	if err := validateIndexSettings(s); err != nil {
		return err
	}

	if s.Pacing.PerEntry < 0 || s.Pacing.AfterFiles < 0 || s.Pacing.BeforeBatch < 0 {
		return errors.New("pacing delays cannot be negative")
	}

	if s.Walker.MaxConcurrentFiles < 0 {
		return errors.New("walker-max-concurrent-files cannot be negative")
	}

	switch s.Status.Backend {
	case StatusBackendFile, StatusBackendSQLite:
	default:
		return fmt.Errorf("unknown status-backend: %s", s.Status.Backend)
	}

	switch s.Git.Backend {
	case GitBackendCLI, GitBackendGoGit:
	default:
		return fmt.Errorf("unknown git-backend: %s", s.Git.Backend)
	}

	if s.Jobs.MaxParallel <= 0 {
		return errors.New("jobs-max-parallel must be positive")
	}
	if s.Jobs.Timeout < 0 {
		return errors.New("jobs-timeout cannot be negative")
	}
	if s.Jobs.LockWait < 0 {
		return errors.New("jobs-lock-wait cannot be negative")
	}

	return nil
}

func validateAuthSettings(a *AuthSettings) error {
	hasBasicCreds := a.Basic.Username != "" || a.Basic.Password != ""
	hasAPIKeys := len(a.APIKeys) > 0

	switch a.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if a.Basic.Username == "" || a.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}

func validateLLMSettings(l *LLMSettings) error {
	if l.APIKey == "" {
		return errors.New("llm-api-key is required")
	}
	if l.PrimaryModel == "" {
		return errors.New("llm-primary-model cannot be empty")
	}
	if l.FallbackModel == "" {
		return errors.New("llm-fallback-model cannot be empty")
	}
	if l.RequestsPerSecond < 0 {
		return errors.New("llm-requests-per-second cannot be negative")
	}
	return nil
}

func validateIndexSettings(s *Settings) error {
	if len(s.Index.Backends) == 0 {
		return errors.New("at least one index backend is required")
	}
	for _, b := range s.Index.Backends {
		switch b {
		case IndexBackendBleve, IndexBackendQdrant:
		default:
			return fmt.Errorf("unknown index backend: %s", b)
		}
	}
	if s.Index.Namespace == "" {
		return errors.New("index-namespace cannot be empty")
	}
	if s.Index.Target == "" {
		return errors.New("index-target cannot be empty")
	}
	if s.Index.BatchSize <= 0 {
		return errors.New("index-batch-size must be positive")
	}
	if s.Index.MaxResults <= 0 {
		return errors.New("index-max-results must be positive")
	}

	if s.HasIndexBackend(IndexBackendQdrant) {
		if s.Qdrant.Host == "" {
			return errors.New("qdrant-host is required when the qdrant backend is enabled")
		}
		if s.Qdrant.Port <= 0 || s.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant-port: %d", s.Qdrant.Port)
		}
		if s.Qdrant.VectorSize == 0 {
			return errors.New("qdrant-vector-size must be positive")
		}
		if s.Qdrant.EmbeddingModel == "" {
			return errors.New("qdrant-embedding-model cannot be empty")
		}
	}
	return nil
}
