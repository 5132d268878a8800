package testkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sha1n/relic-digest/internal/app"
	"github.com/sha1n/relic-digest/internal/config"
	"github.com/sha1n/relic-digest/internal/gitrepos"
	"github.com/spf13/pflag"
)

// Property names published by ServerService.
const (
	PropBaseURL  = "base_url"
	PropServices = "services"
)

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.GetName(), err)
		}
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

func (e *testEnvImpl) Stop() error {
	var lastErr error
	// Stop in reverse order
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port      int      // Uses free port if 0
	Transport string   // Defaults to "sse"
	AuthType  string   // Defaults to "none"
	Host      string   // Defaults to "localhost"
	Workspace string   // Uses a temp dir if empty
	APIKeys   []string // Only used with the apikey auth type
}

// NewTestFlags creates a configured pflag.FlagSet for testing
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	port := 0
	transport := config.TransportSSE
	authType := config.AuthTypeNone
	host := "localhost"
	workspace := ""
	var apiKeys []string

	if opts != nil {
		if opts.Port != 0 {
			port = opts.Port
		}
		if opts.Transport != "" {
			transport = opts.Transport
		}
		if opts.AuthType != "" {
			authType = opts.AuthType
		}
		if opts.Host != "" {
			host = opts.Host
		}
		workspace = opts.Workspace
		apiKeys = opts.APIKeys
	}

	if port == 0 {
		port = MustGetFreePort(t)
	}
	if workspace == "" {
		workspace = t.TempDir()
	}

	_ = flags.Set("port", fmt.Sprintf("%d", port))
	_ = flags.Set("transport", transport)
	_ = flags.Set("auth-type", authType)
	_ = flags.Set("host", host)
	_ = flags.Set("workspace", workspace)
	_ = flags.Set("llm-api-key", "sk-test")
	_ = flags.Set("github-lookup", "false")
	if len(apiKeys) > 0 {
		_ = flags.Set("auth-api-keys", strings.Join(apiKeys, ","))
	}

	return flags
}

// EchoCompleter answers every prompt with "summary: " and the prompt's first line.
type EchoCompleter struct {
	mu    sync.Mutex
	calls int
}

// Complete implements summarize.Completer.
func (e *EchoCompleter) Complete(_ context.Context, prompt string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	first, _, _ := strings.Cut(prompt, "\n")
	return "summary: " + first, nil
}

// Calls returns the number of completions served.
func (e *EchoCompleter) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// NoSleep is a pacing sleeper that returns immediately.
func NoSleep(context.Context, time.Duration) error { return nil }

// SampleRepository returns a cloner serving a small Go repository.
func SampleRepository() *gitrepos.FakeCloner {
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

// FakeOverrides wires cloner with an echo completer, no GitHub lookup and no pacing.
func FakeOverrides(cloner gitrepos.Cloner) app.Overrides {
	completer := &EchoCompleter{}
	return app.Overrides{
		Cloner:   cloner,
		Details:  gitrepos.NoDetails{},
		Primary:  completer,
		Fallback: completer,
		Sleep:    NoSleep,
	}
}

// ServerService runs the SSE server in the background with fake collaborators.
type ServerService struct {
	Flags     *pflag.FlagSet
	Overrides app.Overrides
	// StartTimeout bounds how long Start waits for /health. Defaults to 10s.
	StartTimeout time.Duration

	cancel   context.CancelFunc
	done     chan error
	mu       sync.Mutex
	services *app.Services
}

// NewServerService creates a ServerService.
func NewServerService(flags *pflag.FlagSet, overrides app.Overrides) *ServerService {
	return &ServerService{Flags: flags, Overrides: overrides}
}

func (s *ServerService) GetName() string {
	return "relic-digest-server"
}

// Start runs the server and waits until /health answers.
func (s *ServerService) Start() (map[string]any, error) {
	host, _ := s.Flags.GetString("host")
	port, _ := s.Flags.GetInt("port")
	baseURL := fmt.Sprintf("http://%s:%d", host, port)

	params := app.DefaultRunParams()
	params.BuildServices = func(ctx context.Context, settings *config.Settings) (*app.Services, error) {
		svc, err := app.BuildServicesWithOverrides(ctx, settings, s.Overrides)
		if err == nil {
			s.mu.Lock()
			s.services = svc
			s.mu.Unlock()
		}
		return svc, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() {
		s.done <- app.RunWithDeps(ctx, params, s.Flags, "test")
	}()

	timeout := s.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := waitForHealth(baseURL, timeout, s.done); err != nil {
		cancel()
		return nil, err
	}

	s.mu.Lock()
	svc := s.services
	s.mu.Unlock()
	return map[string]any{PropBaseURL: baseURL, PropServices: svc}, nil
}

// Stop cancels the server and waits for it to shut down.
func (s *ServerService) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case err := <-s.done:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-time.After(30 * time.Second):
		return errors.New("server did not stop in time")
	}
}

func waitForHealth(baseURL string, timeout time.Duration, done <-chan error) error {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case err := <-done:
			return fmt.Errorf("server exited during startup: %w", err)
		default:
		}
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not healthy after %s", baseURL, timeout)
}
