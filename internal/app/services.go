package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sha1n/relic-digest/internal/config"
	"github.com/sha1n/relic-digest/internal/gitrepos"
	"github.com/sha1n/relic-digest/internal/ignore"
	"github.com/sha1n/relic-digest/internal/index"
	"github.com/sha1n/relic-digest/internal/jobs"
	"github.com/sha1n/relic-digest/internal/metrics"
	"github.com/sha1n/relic-digest/internal/pacing"
	"github.com/sha1n/relic-digest/internal/status"
	"github.com/sha1n/relic-digest/internal/summarize"
	"github.com/sha1n/relic-digest/internal/walker"
	"github.com/spf13/afero"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server and running jobs.
const shutdownTimeout = 30 * time.Second

// Overrides replace production collaborators. Nil fields use the settings.
type Overrides struct {
	Cloner   gitrepos.Cloner
	Details  gitrepos.DetailsProvider
	Primary  summarize.Completer
	Fallback summarize.Completer
	Sleep    pacing.Sleeper
	Fs       afero.Fs
}

// Services holds the wired components behind the server and CLI.
type Services struct {
	Jobs         *jobs.Runner
	Orchestrator *jobs.Orchestrator

	// Summaries is nil when the bleve backend is disabled.
	Summaries *index.BleveStore

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	closers []func() error
}

// Close stops the job runner, waiting up to shutdownTimeout, then releases stores.
func (s *Services) Close() error {
	var errs []error
	if s.Jobs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.Jobs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("job runner shutdown: %w", err))
		}
		cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// BuildServices wires status store, cloner, summarizer, indexers, walker and job runner
// from settings.
func BuildServices(ctx context.Context, settings *config.Settings) (*Services, error) {
	return BuildServicesWithOverrides(ctx, settings, Overrides{})
}

// BuildServicesWithOverrides is BuildServices with replaceable collaborators.
func BuildServicesWithOverrides(ctx context.Context, settings *config.Settings, o Overrides) (_ *Services, err error) {
	svc := &Services{Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			if closeErr := svc.Close(); closeErr != nil {
				slog.Error("Failed to release partially built services", "error", closeErr)
			}
		}
	}()

	svc.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc.Metrics = metrics.New(svc.Registry)

	store, err := status.Open(settings.Status.Backend, settings.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to open status store: %w", err)
	}
	svc.closers = append(svc.closers, store.Close)

	cloner := o.Cloner
	if cloner == nil {
		if cloner, err = gitrepos.NewCloner(settings.Git.Backend); err != nil {
			return nil, err
		}
	}

	details := o.Details
	if details == nil {
		if settings.GitHub.Lookup {
			gh, err := gitrepos.NewGitHubDetails(ctx, settings.GitHub.Token, settings.GitHub.APIURL)
			if err != nil {
				return nil, err
			}
			details = gh
		} else {
			details = gitrepos.NoDetails{}
		}
	}

	summarizer, err := buildSummarizer(settings, o)
	if err != nil {
		return nil, err
	}
	summarizer.WithObserver(svc.Metrics)

	indexer, err := svc.buildIndexer(settings)
	if err != nil {
		return nil, err
	}

	classifier, err := ignore.NewClassifier(settings.Ignore.ExtraPatterns...)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore patterns: %w", err)
	}

	w, err := walker.New(walker.Dependencies{
		Fs:         o.Fs,
		Summarizer: summarizer,
		Classifier: classifier,
		Indexer:    indexer,
		Sleep:      o.Sleep,
		Observer:   svc.Metrics,
	}, walker.Config{
		Namespace:   settings.Index.Namespace,
		IndexTarget: settings.Index.Target,
		BatchSize:   settings.Index.BatchSize,
		Pacing: pacing.Settings{
			PerEntry:    settings.Pacing.PerEntry,
			AfterFiles:  settings.Pacing.AfterFiles,
			BeforeBatch: settings.Pacing.BeforeBatch,
		},
		MaxConcurrentFiles: settings.Walker.MaxConcurrentFiles,
		SkipBinary:         settings.Walker.SkipBinary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create walker: %w", err)
	}

	svc.Orchestrator, err = jobs.NewOrchestrator(jobs.Dependencies{
		Store:    store,
		Cloner:   cloner,
		Walker:   w,
		Details:  details,
		Observer: svc.Metrics,
	}, jobs.Config{
		Workspace: settings.Workspace,
		LockWait:  settings.Jobs.LockWait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	svc.Jobs = jobs.NewRunner(svc.Orchestrator, jobs.RunnerConfig{
		MaxParallel: settings.Jobs.MaxParallel,
		Timeout:     settings.Jobs.Timeout,
	})

	return svc, nil
}

func buildSummarizer(settings *config.Settings, o Overrides) (*summarize.Client, error) {
	primary, fallback := o.Primary, o.Fallback
	// One request budget for both tiers.
	limiter := summarize.NewLimiter(settings.LLM.RequestsPerSecond)
	if primary == nil {
		c, err := summarize.NewLangChainCompleter(summarize.ModelConfig{
			BaseURL:           settings.LLM.BaseURL,
			APIKey:            settings.LLM.APIKey,
			Model:             settings.LLM.PrimaryModel,
			RequestsPerSecond: settings.LLM.RequestsPerSecond,
			Limiter:           limiter,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create primary model: %w", err)
		}
		primary = c
	}
	if fallback == nil {
		c, err := summarize.NewLangChainCompleter(summarize.ModelConfig{
			BaseURL:           settings.LLM.BaseURL,
			APIKey:            settings.LLM.APIKey,
			Model:             settings.LLM.FallbackModel,
			RequestsPerSecond: settings.LLM.RequestsPerSecond,
			Limiter:           limiter,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback model: %w", err)
		}
		fallback = c
	}
	return summarize.NewClient(primary, fallback), nil
}

func (s *Services) buildIndexer(settings *config.Settings) (index.Indexer, error) {
	var indexers index.Multi

	if settings.HasIndexBackend(config.IndexBackendBleve) {
		store, err := index.NewBleveStore(settings.Workspace)
		if err != nil {
			return nil, fmt.Errorf("failed to create bleve store: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		s.Summaries = store
		indexers = append(indexers, store)
	}

	if settings.HasIndexBackend(config.IndexBackendQdrant) {
		store, err := index.NewQdrantStore(index.QdrantConfig{
			Host:             settings.Qdrant.Host,
			Port:             settings.Qdrant.Port,
			APIKey:           settings.Qdrant.APIKey,
			UseTLS:           settings.Qdrant.UseTLS,
			VectorSize:       settings.Qdrant.VectorSize,
			EmbeddingBaseURL: settings.Qdrant.EmbeddingBaseURL,
			EmbeddingModel:   settings.Qdrant.EmbeddingModel,
			EmbeddingAPIKey:  settings.Qdrant.EmbeddingAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant store: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		indexers = append(indexers, store)
	}

	if len(indexers) == 0 {
		return nil, errors.New("no index backend configured")
	}
	if len(indexers) == 1 {
		return indexers[0], nil
	}
	return indexers, nil
}

// gatherer returns the metrics registry, or nil when there is none.
func (s *Services) gatherer() prometheus.Gatherer {
	if s == nil || s.Registry == nil {
		return nil
	}
	return s.Registry
}
