// Package jobs runs repository summarization jobs: input validation, the
// resubmission gate, status transitions, repository acquisition and cleanup
// around a tree walk.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/sha1n/relic-digest/internal/gitrepos"
	"github.com/sha1n/relic-digest/internal/status"
)

var (
	// ErrMissingURL indicates an empty repository URL
	ErrMissingURL = errors.New("repository URL is required")

	// ErrInvalidURL indicates a repository URL that cannot be parsed
	ErrInvalidURL = errors.New("invalid repository URL")

	// ErrJobInProgress indicates another job holds the repository lock
	ErrJobInProgress = errors.New("a job for this repository is already in progress")
)

// RepositoryWalker summarizes a cloned repository. *walker.Walker satisfies it.
type RepositoryWalker interface {
	SummarizeRepository(ctx context.Context, root, repositoryID string) (string, error)
}

// Observer is notified when a job reaches a terminal status.
type Observer interface {
	JobFinished(status domain.JobStatus)
}

// Result describes a finished or skipped job.
type Result struct {
	Repository string
	Status     domain.JobStatus

	// Skipped is true when the stored status blocked resubmission.
	Skipped bool

	// Summary is the root summary, for logging only.
	Summary string
	Commit  string
}

// Job is a validated, submitted job that holds its repository lock until executed.
type Job struct {
	Repository gitrepos.Repository
	lock       *gitrepos.FileLock
}

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Store   status.Store
	Cloner  gitrepos.Cloner
	Walker  RepositoryWalker
	Details gitrepos.DetailsProvider

	// Observer is optional.
	Observer Observer
}

// Config holds orchestrator settings.
type Config struct {
	// Workspace holds clones under repos/ and lock files under locks/.
	Workspace string

	// LockWait is how long to wait for a busy repository lock. Zero fails immediately.
	LockWait time.Duration
}

// Orchestrator coordinates a single repository job.
type Orchestrator struct {
	store     status.Store
	cloner    gitrepos.Cloner
	walker    RepositoryWalker
	details   gitrepos.DetailsProvider
	observer  Observer
	cfg       Config
	now       func() time.Time
	removeAll func(path string) error
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Dependencies, cfg Config) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("status store cannot be nil")
	}
	if deps.Cloner == nil {
		return nil, errors.New("cloner cannot be nil")
	}
	if deps.Walker == nil {
		return nil, errors.New("walker cannot be nil")
	}
	if cfg.Workspace == "" {
		return nil, errors.New("workspace cannot be empty")
	}
	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	o := &Orchestrator{
		store:     deps.Store,
		cloner:    deps.Cloner,
		walker:    deps.Walker,
		details:   deps.Details,
		observer:  deps.Observer,
		cfg:       cfg,
		now:       time.Now,
		removeAll: os.RemoveAll,
	}
	if o.details == nil {
		o.details = gitrepos.NoDetails{}
	}
	return o, nil
}

// Run validates, submits and executes a job synchronously.
func (o *Orchestrator) Run(ctx context.Context, repoURL string) (Result, error) {
	job, result, err := o.Prepare(ctx, repoURL)
	if err != nil || job == nil {
		return result, err
	}
	return o.Execute(ctx, job)
}

// Prepare validates repoURL, applies the resubmission gate, takes the repository
// lock and records the submitted status. A nil Job with a nil error means the job
// was skipped; result.Status then holds the stored status.
func (o *Orchestrator) Prepare(ctx context.Context, repoURL string) (*Job, Result, error) {
	if strings.TrimSpace(repoURL) == "" {
		return nil, Result{}, ErrMissingURL
	}

	repo, err := gitrepos.ParseRepositoryURL(repoURL)
	if err != nil {
		return nil, Result{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	result := Result{Repository: repo.ID()}

	if skipped, err := o.gate(ctx, &result); skipped || err != nil {
		return nil, result, err
	}

	lock, err := gitrepos.AcquireRepositoryLock(ctx, o.cfg.Workspace, repo, o.cfg.LockWait)
	if err != nil {
		if errors.Is(err, gitrepos.ErrLockWouldBlock) || errors.Is(err, gitrepos.ErrLockTimeout) {
			return nil, result, fmt.Errorf("%w: %s", ErrJobInProgress, repo.ID())
		}
		return nil, result, fmt.Errorf("failed to lock repository: %w", err)
	}

	// Another holder may have finished the repository while we waited for the lock.
	if skipped, err := o.gate(ctx, &result); skipped || err != nil {
		o.release(lock, repo.ID())
		return nil, result, err
	}

	if err := o.putStatus(ctx, repo.ID(), domain.StatusSubmitted, "", ""); err != nil {
		o.release(lock, repo.ID())
		return nil, result, err
	}

	result.Status = domain.StatusSubmitted
	return &Job{Repository: repo, lock: lock}, result, nil
}

// gate reports whether the stored status blocks a new job for result.Repository.
// When it does, result carries the stored status and is marked skipped.
func (o *Orchestrator) gate(ctx context.Context, result *Result) (bool, error) {
	rec, found, err := o.store.Get(ctx, result.Repository)
	if err != nil {
		return false, fmt.Errorf("failed to read job status: %w", err)
	}
	if !found || !rec.Status.BlocksResubmission() {
		return false, nil
	}
	slog.Info("Repository already processed", "repo", result.Repository, "status", rec.Status)
	result.Status = rec.Status
	result.Skipped = true
	return true, nil
}

// Execute acquires the repository, walks it and records the terminal status. The
// job's lock is released before returning. The returned error is non-nil exactly
// when the terminal status is a failure.
func (o *Orchestrator) Execute(ctx context.Context, job *Job) (Result, error) {
	repo := job.Repository
	defer o.release(job.lock, repo.ID())

	result := Result{Repository: repo.ID()}
	started := o.now()

	if repo.IsGitHub() {
		details, err := o.details.Lookup(ctx, repo)
		if err != nil {
			return o.fail(ctx, result, domain.StatusFailedRepositoryDetail, err)
		}
		slog.Info("Repository details", "repo", repo.ID(), "default_branch", details.DefaultBranch, "size_kb", details.SizeKB)
	}

	cloneDir := gitrepos.CloneDir(o.cfg.Workspace, repo)
	if _, err := os.Stat(cloneDir); err == nil {
		slog.Info("Removing stale clone", "repo", repo.ID(), "path", cloneDir)
		if err := o.removeAll(cloneDir); err != nil {
			return o.fail(ctx, result, domain.StatusFailed, fmt.Errorf("failed to remove stale clone: %w", err))
		}
	}

	slog.Info("Cloning repository", "repo", repo.ID(), "url", repo.URL)
	if err := o.cloner.Clone(ctx, repo.URL, cloneDir); err != nil {
		o.cleanup(cloneDir, repo.ID())
		return o.fail(ctx, result, domain.StatusFailedClone, err)
	}

	commit, err := o.cloner.HeadCommit(ctx, cloneDir)
	if err != nil {
		slog.Warn("Failed to resolve HEAD commit", "repo", repo.ID(), "error", err)
	}
	result.Commit = commit

	summary, err := o.walker.SummarizeRepository(ctx, cloneDir, repo.ID())
	o.cleanup(cloneDir, repo.ID())
	if err != nil {
		return o.fail(ctx, result, domain.StatusFailed, err)
	}

	if err := o.putStatus(ctx, repo.ID(), domain.StatusCompleted, "", commit); err != nil {
		return result, err
	}
	o.finished(domain.StatusCompleted)

	slog.Info("Repository summarized", "repo", repo.ID(), "commit", commit,
		"duration", o.now().Sub(started).Round(time.Millisecond), "summary", summary)

	result.Status = domain.StatusCompleted
	result.Summary = summary
	return result, nil
}

// Status returns the stored status for the repository at repoURL.
func (o *Orchestrator) Status(ctx context.Context, repoURL string) (domain.StatusRecord, bool, error) {
	if strings.TrimSpace(repoURL) == "" {
		return domain.StatusRecord{}, false, ErrMissingURL
	}
	repo, err := gitrepos.ParseRepositoryURL(repoURL)
	if err != nil {
		return domain.StatusRecord{}, false, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	return o.store.Get(ctx, repo.ID())
}

func (o *Orchestrator) fail(ctx context.Context, result Result, jobStatus domain.JobStatus, cause error) (Result, error) {
	slog.Error("Job failed", "repo", result.Repository, "status", jobStatus, "error", cause)

	result.Status = jobStatus
	if err := o.putStatus(ctx, result.Repository, jobStatus, cause.Error(), result.Commit); err != nil {
		slog.Error("Failed to record job status", "repo", result.Repository, "error", err)
	}
	o.finished(jobStatus)
	return result, fmt.Errorf("%s: %w", jobStatus, cause)
}

// putStatus writes a status record. Writes are not canceled with ctx so that a
// timed out job still records its terminal status.
func (o *Orchestrator) putStatus(ctx context.Context, repository string, jobStatus domain.JobStatus, reason, commit string) error {
	err := o.store.Put(context.WithoutCancel(ctx), domain.StatusRecord{
		Repository: repository,
		Status:     jobStatus,
		Reason:     reason,
		Commit:     commit,
		UpdatedAt:  o.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record status %s: %w", jobStatus, err)
	}
	return nil
}

func (o *Orchestrator) cleanup(cloneDir, repositoryID string) {
	if err := o.removeAll(cloneDir); err != nil {
		slog.Warn("Failed to remove clone", "repo", repositoryID, "path", cloneDir, "error", err)
	}
}

func (o *Orchestrator) release(lock *gitrepos.FileLock, repositoryID string) {
	if lock == nil {
		return
	}
	if err := lock.Unlock(); err != nil {
		slog.Error("Failed to unlock repository", "repo", repositoryID, "error", err)
	}
}

func (o *Orchestrator) finished(jobStatus domain.JobStatus) {
	if o.observer != nil {
		o.observer.JobFinished(jobStatus)
	}
}
