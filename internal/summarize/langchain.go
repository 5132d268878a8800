package summarize

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// ModelConfig configures one model tier.
type ModelConfig struct {
	// BaseURL of an OpenAI compatible API. Empty uses the library default.
	BaseURL string

	// APIKey used as bearer token.
	APIKey string `json:"-"`

	// Model name, e.g. gpt-3.5-turbo or gpt-3.5-turbo-16k.
	Model string

	// RequestsPerSecond caps the request rate. Zero disables the limiter.
	RequestsPerSecond float64

	// Limiter, when set, replaces RequestsPerSecond. Tiers that share one limiter
	// share one request budget.
	Limiter *rate.Limiter
}

// NewLimiter returns a limiter allowing requestsPerSecond, or no limit when it is
// not positive.
func NewLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// Validate checks the tier configuration.
func (c ModelConfig) Validate() error {
	if c.Model == "" {
		return errors.New("model name required")
	}
	if c.APIKey == "" {
		return errors.New("API key required")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("requests per second cannot be negative")
	}
	return nil
}

// LangChainCompleter implements Completer over a langchaingo model.
type LangChainCompleter struct {
	model   llms.Model
	limiter *rate.Limiter
}

// NewLangChainCompleter creates a completer backed by the OpenAI chat API.
func NewLangChainCompleter(cfg ModelConfig) (*LangChainCompleter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating model config: %w", err)
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLimiter(cfg.RequestsPerSecond)
	}
	return NewLangChainCompleterWithModel(llm, limiter), nil
}

// NewLangChainCompleterWithModel wraps an existing langchaingo model. A nil
// limiter means no limit.
func NewLangChainCompleterWithModel(model llms.Model, limiter *rate.Limiter) *LangChainCompleter {
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &LangChainCompleter{
		model:   model,
		limiter: limiter,
	}
}

// Complete sends prompt as a single user message and returns the first choice.
func (l *LangChainCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return completion, nil
}

var _ Completer = (*LangChainCompleter)(nil)
