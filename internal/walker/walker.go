// Package walker recursively summarizes a repository tree. Each directory is
// summarized from its children's summaries, and every directory frame flushes
// the index documents it produced before returning to its parent.
package walker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/sha1n/relic-digest/internal/ignore"
	"github.com/sha1n/relic-digest/internal/index"
	"github.com/sha1n/relic-digest/internal/pacing"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// RootLabel is the label used for the repository root in directory prompts.
const RootLabel = "/"

// Summarizer produces file and directory summaries. *summarize.Client satisfies it.
type Summarizer interface {
	SummarizeFile(ctx context.Context, content, label string) (string, error)
	SummarizeDirectory(ctx context.Context, label string, childSummaryLines []string) (string, error)
}

// Classifier decides which root-relative paths are skipped. *ignore.Classifier satisfies it.
type Classifier interface {
	ShouldIgnore(path string) bool
}

// FileOutcome classifies how a single file was handled.
type FileOutcome string

const (
	OutcomeSummarized FileOutcome = "summarized"
	OutcomeEmpty      FileOutcome = "empty"
	OutcomeFailed     FileOutcome = "failed"
	OutcomeUnreadable FileOutcome = "unreadable"
	OutcomeIgnored    FileOutcome = "ignored"
	OutcomeBinary     FileOutcome = "binary"
)

// Observer receives per-file outcomes and index batch results. Implementations must
// be safe for concurrent use.
type Observer interface {
	FileSummarized(outcome FileOutcome)
	index.Observer
}

// Config holds traversal settings.
type Config struct {
	// Namespace is the first component of every document id.
	Namespace string

	// IndexTarget is the destination index or collection.
	IndexTarget string

	// BatchSize is the maximum number of documents per index call.
	BatchSize int

	Pacing pacing.Settings

	// MaxConcurrentFiles caps the file tasks running at once within a directory.
	// Zero means no limit.
	MaxConcurrentFiles int

	// SkipBinary treats files with binary content as having no summary.
	SkipBinary bool
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.IndexTarget == "" {
		return errors.New("index target is required")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("invalid batch size: %d", c.BatchSize)
	}
	if c.MaxConcurrentFiles < 0 {
		return fmt.Errorf("invalid max concurrent files: %d", c.MaxConcurrentFiles)
	}
	if c.Pacing.PerEntry < 0 || c.Pacing.AfterFiles < 0 || c.Pacing.BeforeBatch < 0 {
		return errors.New("pacing delays cannot be negative")
	}
	return nil
}

// Dependencies are the collaborators a Walker drives.
type Dependencies struct {
	Fs         afero.Fs
	Summarizer Summarizer
	Classifier Classifier
	Indexer    index.Indexer

	// Sleep defaults to pacing.Sleep.
	Sleep pacing.Sleeper

	// Observer is optional.
	Observer Observer
}

// Walker summarizes directory trees.
type Walker struct {
	fs         afero.Fs
	summarizer Summarizer
	classifier Classifier
	indexer    index.Indexer
	sleep      pacing.Sleeper
	observer   Observer
	cfg        Config
}

// New creates a Walker.
func New(deps Dependencies, cfg Config) (*Walker, error) {
	if deps.Summarizer == nil {
		return nil, errors.New("summarizer cannot be nil")
	}
	if deps.Indexer == nil {
		return nil, errors.New("indexer cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &Walker{
		fs:         deps.Fs,
		summarizer: deps.Summarizer,
		classifier: deps.Classifier,
		indexer:    deps.Indexer,
		sleep:      deps.Sleep,
		observer:   deps.Observer,
		cfg:        cfg,
	}
	if w.fs == nil {
		w.fs = afero.NewOsFs()
	}
	if w.classifier == nil {
		w.classifier = ignore.Default()
	}
	if w.sleep == nil {
		w.sleep = pacing.Sleep
	}
	if w.observer == nil {
		w.observer = nopObserver{}
	}
	return w, nil
}

// SummarizeRepository summarizes the whole tree under root and returns the root summary.
func (w *Walker) SummarizeRepository(ctx context.Context, root, repositoryID string) (string, error) {
	return w.SummarizeDirectory(ctx, root, repositoryID, nil)
}

// SummarizeDirectory summarizes the directory at rel under root, flushing documents for
// its files and itself. Failures below this directory are contained and logged; an error
// is returned only when the directory cannot be listed, its documents cannot be flushed,
// or ctx is done.
func (w *Walker) SummarizeDirectory(ctx context.Context, root, repositoryID string, rel domain.PathKey) (string, error) {
	if !rel.IsRoot() && w.classifier.ShouldIgnore(rel.String()) {
		slog.Debug("Ignoring path", "repo", repositoryID, "path", rel.String())
		return "", nil
	}

	dir := filepath.Join(root, filepath.Join(rel...))
	slog.Info("Processing directory", "repo", repositoryID, "path", labelOf(rel))

	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", labelOf(rel), err)
	}

	var files []os.FileInfo
	records := make([]domain.SummaryRecord, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry)
			continue
		}

		child := rel.Child(entry.Name())
		summary, err := w.SummarizeDirectory(ctx, root, repositoryID, child)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			slog.Warn("Directory summarization failed", "repo", repositoryID, "path", child.String(), "error", err)
			summary = ""
		}
		records = append(records, domain.SummaryRecord{Path: child, Label: entry.Name(), Summary: summary})
	}

	if err := w.sleep(ctx, w.cfg.Pacing.PerEntry*time.Duration(len(entries))); err != nil {
		return "", err
	}

	fileRecords, docs := w.summarizeFiles(ctx, dir, repositoryID, rel, files)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	records = append(records, fileRecords...)

	if err := w.sleep(ctx, w.cfg.Pacing.AfterFiles); err != nil {
		return "", err
	}

	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.DigestLine()
	}

	summary, err := w.summarizer.SummarizeDirectory(ctx, labelOf(rel), lines)
	if err != nil {
		slog.Warn("Summarization failed", "repo", repositoryID, "path", labelOf(rel), "error", err)
		summary = ""
	}
	if summary != "" {
		docs = append(docs, w.document(repositoryID, rel, summary))
	}

	err = index.Flush(ctx, w.indexer, docs, index.FlushOptions{
		BatchSize: w.cfg.BatchSize,
		Delay:     w.cfg.Pacing.BeforeBatch,
		Sleep:     w.sleep,
		Observer:  w.observer,
	})
	if err != nil {
		return "", fmt.Errorf("failed to index %s: %w", labelOf(rel), err)
	}

	return summary, nil
}

// summarizeFiles summarizes files concurrently and waits for all of them. Records keep
// the enumeration order of files regardless of completion order.
func (w *Walker) summarizeFiles(ctx context.Context, dir, repositoryID string, rel domain.PathKey, files []os.FileInfo) ([]domain.SummaryRecord, []domain.IndexDocument) {
	records := make([]domain.SummaryRecord, len(files))
	summaries := make([]string, len(files))

	var g errgroup.Group
	if w.cfg.MaxConcurrentFiles > 0 {
		g.SetLimit(w.cfg.MaxConcurrentFiles)
	}

	for i, file := range files {
		child := rel.Child(file.Name())
		records[i] = domain.SummaryRecord{Path: child, Label: file.Name()}

		if w.classifier.ShouldIgnore(child.String()) {
			slog.Debug("Ignoring path", "repo", repositoryID, "path", child.String())
			w.observer.FileSummarized(OutcomeIgnored)
			continue
		}

		g.Go(func() error {
			summaries[i] = w.summarizeFile(ctx, filepath.Join(dir, file.Name()), repositoryID, child)
			return nil
		})
	}
	_ = g.Wait()

	var docs []domain.IndexDocument
	for i := range records {
		records[i].Summary = summaries[i]
		if summaries[i] != "" {
			docs = append(docs, w.document(repositoryID, records[i].Path, summaries[i]))
		}
	}
	return records, docs
}

// summarizeFile returns the file's summary, or "" when it has none. It never fails.
func (w *Walker) summarizeFile(ctx context.Context, path, repositoryID string, rel domain.PathKey) string {
	content, err := afero.ReadFile(w.fs, path)
	if err != nil {
		slog.Warn("Failed to read file", "repo", repositoryID, "path", rel.String(), "error", err)
		w.observer.FileSummarized(OutcomeUnreadable)
		return ""
	}

	if w.cfg.SkipBinary && ignore.IsBinary(content) {
		slog.Debug("Skipping binary file", "repo", repositoryID, "path", rel.String())
		w.observer.FileSummarized(OutcomeBinary)
		return ""
	}

	summary, err := w.summarizer.SummarizeFile(ctx, string(content), rel.Name())
	if err != nil {
		slog.Warn("Summarization failed", "repo", repositoryID, "path", rel.String(), "error", err)
		w.observer.FileSummarized(OutcomeFailed)
		return ""
	}
	if summary == "" {
		w.observer.FileSummarized(OutcomeEmpty)
		return ""
	}

	w.observer.FileSummarized(OutcomeSummarized)
	return summary
}

func (w *Walker) document(repositoryID string, path domain.PathKey, text string) domain.IndexDocument {
	return domain.NewIndexDocument(w.cfg.Namespace, w.cfg.IndexTarget, repositoryID, path, text)
}

func labelOf(rel domain.PathKey) string {
	if rel.IsRoot() {
		return RootLabel
	}
	return rel.String()
}

type nopObserver struct{}

func (nopObserver) FileSummarized(FileOutcome) {}
func (nopObserver) IndexBatch(int, error)      {}
