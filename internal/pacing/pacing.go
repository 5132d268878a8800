// Package pacing holds the fixed delays used to stay under backend rate limits.
package pacing

import (
	"context"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Settings holds the delays applied during a traversal.
type Settings struct {
	// PerEntry is multiplied by the number of entries in a directory and waited
	// after its subdirectories are done, before its files start.
	PerEntry time.Duration

	// AfterFiles is waited after the file join, before the directory request.
	AfterFiles time.Duration

	// BeforeBatch is waited before each index batch is submitted.
	BeforeBatch time.Duration
}

// DefaultSettings returns the delays used in production.
func DefaultSettings() Settings {
	return Settings{
		PerEntry:    40 * time.Millisecond,
		AfterFiles:  40 * time.Millisecond,
		BeforeBatch: 200 * time.Millisecond,
	}
}

// Recorder is a Sleeper that records requested delays without waiting.
type Recorder struct {
	Delays []time.Duration
}

// Sleep records d and returns immediately. Not safe for concurrent use.
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.Delays = append(r.Delays, d)
	return ctx.Err()
}
