// Package summarize asks a language model for short natural-language summaries of
// files and directories, falling back to a long-context model when the primary fails.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrSummaryUnavailable is returned when both model tiers fail.
// Callers treat it as "no summary" and continue.
var ErrSummaryUnavailable = errors.New("summary unavailable")

// Completer sends a single prompt to a model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Observer receives fallback notifications. It may be nil.
type Observer interface {
	SummaryFallback()
}

// Client produces file and directory summaries.
type Client struct {
	primary  Completer
	fallback Completer
	observer Observer
}

// NewClient creates a Client. fallback may be nil, in which case a primary failure
// is final.
func NewClient(primary, fallback Completer) *Client {
	return &Client{
		primary:  primary,
		fallback: fallback,
	}
}

// WithObserver attaches an Observer and returns the client.
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// FilePrompt builds the request used to summarize a single file.
func FilePrompt(content, label string) string {
	return fmt.Sprintf("Explain this code file, named %s, in at most 3 sentences:\n%s", label, content)
}

// DirectoryPrompt builds the request used to summarize a directory from its children.
func DirectoryPrompt(label string, childSummaryLines []string) string {
	return fmt.Sprintf(
		"Summarize the contents and functionality of the following directory in at most 3 sentences.\n"+
			"The directory is %s, and its contents are as follows:\n\n%s",
		label, strings.Join(childSummaryLines, "\n"))
}

// SummarizeFile summarizes content labeled with the file name.
// The returned text is trimmed; "" means the model returned nothing useful.
func (c *Client) SummarizeFile(ctx context.Context, content, label string) (string, error) {
	return c.complete(ctx, FilePrompt(content, label), label)
}

// SummarizeDirectory summarizes a directory from its digest lines.
func (c *Client) SummarizeDirectory(ctx context.Context, label string, childSummaryLines []string) (string, error) {
	return c.complete(ctx, DirectoryPrompt(label, childSummaryLines), label)
}

func (c *Client) complete(ctx context.Context, prompt, label string) (string, error) {
	result, err := c.primary.Complete(ctx, prompt)
	if err == nil {
		return strings.TrimSpace(result), nil
	}

	if c.fallback == nil || ctx.Err() != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSummaryUnavailable, label, err)
	}

	slog.Debug("Primary model failed, retrying with fallback", "label", label, "error", err)
	if c.observer != nil {
		c.observer.SummaryFallback()
	}

	result, fallbackErr := c.fallback.Complete(ctx, prompt)
	if fallbackErr != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSummaryUnavailable, label, errors.Join(err, fallbackErr))
	}
	return strings.TrimSpace(result), nil
}
