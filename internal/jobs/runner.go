package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sha1n/relic-digest/internal/domain"
)

// DefaultMaxParallelJobs is the default number of concurrently executing jobs.
const DefaultMaxParallelJobs = 2

// ErrRunnerClosed is returned by Submit after Shutdown.
var ErrRunnerClosed = errors.New("job runner is shut down")

// Submission is the synchronous outcome of Submit.
type Submission struct {
	Repository string

	// Accepted is true when a job was started; false when the stored status
	// blocked resubmission.
	Accepted bool
	Status   domain.JobStatus
}

// RunnerConfig holds runner settings.
type RunnerConfig struct {
	// MaxParallel caps concurrently executing jobs.
	MaxParallel int

	// Timeout bounds a single job. Zero means no timeout.
	Timeout time.Duration
}

// Runner executes jobs in the background with bounded parallelism.
type Runner struct {
	orchestrator *Orchestrator
	sem          chan struct{}
	timeout      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner creates a Runner.
func NewRunner(orchestrator *Orchestrator, cfg RunnerConfig) *Runner {
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelJobs
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		orchestrator: orchestrator,
		sem:          make(chan struct{}, maxParallel),
		timeout:      cfg.Timeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Submit validates repoURL and records the submitted status synchronously, then
// executes the job in the background.
func (r *Runner) Submit(repoURL string) (Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Submission{}, ErrRunnerClosed
	}

	job, result, err := r.orchestrator.Prepare(r.ctx, repoURL)
	if err != nil {
		return Submission{Repository: result.Repository}, err
	}
	if job == nil {
		return Submission{Repository: result.Repository, Status: result.Status}, nil
	}

	r.wg.Add(1)
	go r.execute(job)

	return Submission{Repository: result.Repository, Accepted: true, Status: domain.StatusSubmitted}, nil
}

func (r *Runner) execute(job *Job) {
	defer r.wg.Done()

	// Acquire; a canceled runner still executes so the job records a failure
	acquired := false
	select {
	case r.sem <- struct{}{}:
		acquired = true
	case <-r.ctx.Done():
	}
	if acquired {
		defer func() { <-r.sem }() // Release
	}

	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if _, err := r.orchestrator.Execute(ctx, job); err != nil {
		slog.Error("Background job failed", "repo", job.Repository.ID(), "error", err)
	}
}

// Wait blocks until all submitted jobs have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting jobs and waits for running ones. When ctx is done first,
// running jobs are canceled and recorded as failed.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// Status returns the stored status for the repository at repoURL.
func (r *Runner) Status(ctx context.Context, repoURL string) (domain.StatusRecord, bool, error) {
	return r.orchestrator.Status(ctx, repoURL)
}
