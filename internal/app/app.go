// Package app provides the application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes the run modes:
//
//   - Serve mode: channel scanner, upload queue, HTTP API, and health server
//   - Batch mode: one-shot ingestion of a directory of PDFs
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medlit/paperbot/internal/api"
	"github.com/medlit/paperbot/internal/config"
	"github.com/medlit/paperbot/internal/core/llm"
	"github.com/medlit/paperbot/internal/core/metadata"
	"github.com/medlit/paperbot/internal/db"
	"github.com/medlit/paperbot/internal/extract"
	"github.com/medlit/paperbot/internal/index"
	"github.com/medlit/paperbot/internal/notify"
	"github.com/medlit/paperbot/internal/observability"
	"github.com/medlit/paperbot/internal/process/processor"
	"github.com/medlit/paperbot/internal/process/quiz"
	"github.com/medlit/paperbot/internal/process/visual"
	"github.com/medlit/paperbot/internal/scan"
	"github.com/medlit/paperbot/internal/worker"
)

const (
	statsRefreshInterval = time.Minute
	statsQueryTimeout    = 10 * time.Second
)

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// noopIndexer stands in when no embedding credentials are configured.
type noopIndexer struct{}

func (noopIndexer) Upsert(_ context.Context, _, _ string) error { return nil }

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.database, a.cfg.HealthPort, a.logger).Start(ctx)
}

// Run starts the full service: the channel scan coordinator, the upload
// queue worker, the curator HTTP API, and a periodic catalog stats
// refresh. It blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	notifier, err := notify.New(a.cfg, a.logger)
	if err != nil {
		return err
	}

	proc, quizzes, searcher := a.buildPipelines(notifier)

	session := scan.NewSession()
	coordinator := scan.NewCoordinator(a.cfg, a.database, proc, quizzes, session, a.logger)
	coordinator.SetReporter(notifier)

	queue := api.NewJobQueue()
	server := api.NewServer(a.cfg, a.database, searcher, coordinator, session, queue, a.logger)
	runner := api.NewRunner(queue, proc, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return coordinator.Run(gctx) })
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error {
		return worker.Loop(gctx, worker.Config{
			Name:         "catalog-stats",
			PollInterval: statsRefreshInterval,
			PeriodicTasks: []worker.PeriodicTask{{
				Name:     "refresh catalog gauges",
				Interval: statsRefreshInterval,
				Run:      a.refreshCatalogStats,
			}},
			Logger: a.logger,
		})
	})

	return g.Wait()
}

// RunBatch ingests every PDF under dir once and exits. Already cataloged
// files count as duplicates, so re-running over the same directory is
// safe.
func (a *App) RunBatch(ctx context.Context, dir string) error {
	notifier, err := notify.New(a.cfg, a.logger)
	if err != nil {
		return err
	}

	proc, _, _ := a.buildPipelines(notifier)

	var done, duplicates, failed int

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		result := proc.Process(ctx, path)

		switch result.Status {
		case processor.StatusSuccess:
			done++
		case processor.StatusDuplicate:
			duplicates++
		case processor.StatusFailed:
			failed++

			a.logger.Error().Err(result.Err).Str("file", path).Str("stage", string(result.Stage)).Msg("batch item failed")
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("batch ingest: %w", err)
	}

	a.logger.Info().
		Int("processed", done).
		Int("duplicates", duplicates).
		Int("failed", failed).
		Str("dir", dir).
		Msg("batch ingest finished")

	return nil
}

func (a *App) buildPipelines(notifier *notify.Notifier) (*processor.Processor, *processor.QuizProcessor, api.Searcher) {
	client := a.newLLMClient()

	var (
		indexer  processor.Indexer = noopIndexer{}
		searcher api.Searcher
	)

	if a.cfg.EmbeddingAPIKey != "" {
		idx := index.New(a.database, index.NewOpenAIEmbedder(a.cfg.EmbeddingAPIKey, a.cfg.EmbeddingModel), a.logger)
		indexer = idx
		searcher = idx
	} else {
		a.logger.Warn().Msg("no embedding credentials, semantic index disabled")

		searcher = disabledSearcher{}
	}

	proc := processor.New(
		extract.NewPDF(a.logger),
		a.database,
		client,
		a.newAggregator(),
		visual.NewAnalyzer(client, a.cfg.ImageDir, a.logger),
		indexer,
		notifier,
		a.cfg.AlertQualityScore,
		a.logger,
	)

	quizzes := processor.NewQuizProcessor(a.database, quiz.NewPipeline(client, a.logger), a.logger)

	return proc, quizzes, searcher
}

// disabledSearcher keeps the search endpoint alive without an index.
type disabledSearcher struct{}

func (disabledSearcher) Query(_ context.Context, _ string, _ int) ([]index.Match, error) {
	return nil, errors.New("semantic search is not configured")
}

func (a *App) newLLMClient() llm.Client {
	executor := llm.NewExecutor(map[string]int{
		a.cfg.DeepModel:   a.cfg.DeepModelRPM,
		a.cfg.FastModel:   a.cfg.FastModelRPM,
		a.cfg.VisionModel: a.cfg.VisionModelRPM,
	}, a.logger)

	models := llm.Models{
		Deep:   a.cfg.DeepModel,
		Fast:   a.cfg.FastModel,
		Vision: a.cfg.VisionModel,
	}

	return llm.NewGroq(a.cfg.GroqAPIKey, a.cfg.GroqBaseURL, models, executor, a.logger)
}

func (a *App) newAggregator() *metadata.Aggregator {
	client := &http.Client{Timeout: a.cfg.MetadataTimeout}

	return metadata.NewAggregator(
		metadata.NewPubMed(a.cfg.PubMedBaseURL, client, a.logger),
		metadata.NewCrossref(a.cfg.CrossrefBaseURL, client, a.logger),
		metadata.NewResolver(client),
		a.logger,
	)
}

// refreshCatalogStats runs on the stats worker. The count query is bounded
// so a stalled database never wedges the periodic task.
func (a *App) refreshCatalogStats(ctx context.Context) {
	err := worker.RunWithTimeout(ctx, statsQueryTimeout, func(ctx context.Context) error {
		total, processed, err := a.database.CountPapers(ctx)
		if err != nil {
			return err
		}

		observability.CatalogPapers.Set(float64(total))
		observability.CatalogProcessed.Set(float64(processed))

		return nil
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to refresh catalog stats")
	}
}
