// Package processor drives a single document through the analysis pipeline:
// dedup gate, record creation, critical review, snippet extraction, registry
// enrichment, figure analysis, persistence, and index update.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/core/fingerprint"
	"github.com/medlit/paperbot/internal/core/llm"
	"github.com/medlit/paperbot/internal/core/metadata"
	"github.com/medlit/paperbot/internal/db"
	"github.com/medlit/paperbot/internal/extract"
	"github.com/medlit/paperbot/internal/observability"
	"github.com/medlit/paperbot/internal/process/visual"
)

// Store is the slice of the persistence layer the processor needs. Hash
// uniqueness is enforced there.
type Store interface {
	GetPaperByHash(ctx context.Context, hash string) (*db.Paper, error)
	CreatePaper(ctx context.Context, p *db.Paper) (string, error)
	UpdatePaperMetadata(ctx context.Context, id, title, journal string, year int, authors []string, abstract, doi, source string, metadataJSON []byte) error
	MarkProcessed(ctx context.Context, p *db.Paper) error
}

// Lookup resolves a DOI into a merged registry record; an empty record
// means no registry knows the identifier.
type Lookup interface {
	Lookup(ctx context.Context, doi string) metadata.Record
}

// Indexer pushes a paper's combined text into the semantic index.
type Indexer interface {
	Upsert(ctx context.Context, paperID, text string) error
}

// Notifier announces finished high-quality papers. Best-effort.
type Notifier interface {
	HighQualityPaper(ctx context.Context, paper *db.Paper)
}

type Processor struct {
	extractor extract.Extractor
	store     Store
	client    llm.Client
	lookup    Lookup
	visuals   visual.Analyzer
	indexer   Indexer
	notifier  Notifier

	alertQuality float64
	logger       *zerolog.Logger
}

func New(
	extractor extract.Extractor,
	store Store,
	client llm.Client,
	lookup Lookup,
	visuals visual.Analyzer,
	indexer Indexer,
	notifier Notifier,
	alertQuality float64,
	logger *zerolog.Logger,
) *Processor {
	return &Processor{
		extractor:    extractor,
		store:        store,
		client:       client,
		lookup:       lookup,
		visuals:      visuals,
		indexer:      indexer,
		notifier:     notifier,
		alertQuality: alertQuality,
		logger:       logger,
	}
}

// Process runs one document end to end. Extraction, the dedup query, record
// creation, and final persistence are fatal; every analysis sub-stage
// degrades to an empty value so a flaky provider never loses a document.
func (p *Processor) Process(ctx context.Context, path string) Result {
	logger := p.logger.With().Str("file", path).Logger()

	extraction, err := p.extractor.Extract(ctx, path)
	if err != nil {
		observability.PapersProcessed.WithLabelValues(string(StatusFailed)).Inc()
		return failedResult(StageExtract, "", fmt.Errorf("extract: %w", err))
	}

	hash, err := fingerprint.HashFile(path)
	if err != nil {
		observability.PapersProcessed.WithLabelValues(string(StatusFailed)).Inc()
		return failedResult(StageExtract, "", fmt.Errorf("fingerprint: %w", err))
	}

	logger = logger.With().Str("hash", hash[:12]).Logger()

	doi, _ := fingerprint.ExtractDOI(extraction.Text)

	// Dedup gate. A found-but-unprocessed record is a prior crash
	// mid-pipeline: resume it in place instead of racing the unique index.
	existing, err := p.store.GetPaperByHash(ctx, hash)
	if err != nil {
		observability.PapersProcessed.WithLabelValues(string(StatusFailed)).Inc()
		return failedResult(StageDedup, hash, fmt.Errorf("dedup lookup: %w", err))
	}

	var paper *db.Paper

	switch {
	case existing != nil && existing.Processed:
		logger.Info().Str("paper_id", existing.ID).Msg("duplicate document")
		observability.PapersProcessed.WithLabelValues(string(StatusDuplicate)).Inc()

		return duplicateResult(existing.ID, hash, "content hash already cataloged")

	case existing != nil:
		logger.Warn().Str("paper_id", existing.ID).Msg("resuming unfinished paper")
		paper = existing

	default:
		paper = &db.Paper{
			ContentHash: hash,
			DOI:         doi,
			Title:       extraction.Title,
			PageCount:   extraction.PageCount,
			FilePath:    path,
		}
		if extraction.Author != "" {
			paper.Authors = []string{extraction.Author}
		}

		paper.ID, err = p.store.CreatePaper(ctx, paper)
		if err != nil {
			observability.PapersProcessed.WithLabelValues(string(StatusFailed)).Inc()
			return failedResult(StageCreate, hash, fmt.Errorf("create paper: %w", err))
		}
	}

	logger = logger.With().Str("paper_id", paper.ID).Logger()

	paper.Review = p.review(ctx, &logger, extraction.Text)
	snippets := p.snippets(ctx, &logger, extraction.Text)
	p.applySnippets(paper, snippets)

	if doi != "" {
		p.enrich(ctx, &logger, paper, doi, snippets)
	}

	paper.GraphsJSON = p.analyzeGraphs(ctx, &logger, path, snippets.SummarySlide)

	if err := p.store.MarkProcessed(ctx, paper); err != nil {
		observability.PapersProcessed.WithLabelValues(string(StatusFailed)).Inc()
		return failedResult(StagePersist, hash, fmt.Errorf("mark processed: %w", err))
	}

	if err := p.indexer.Upsert(ctx, paper.ID, indexText(paper, extraction.Text)); err != nil {
		logger.Warn().Err(err).Msg("semantic index update failed")
		observability.PipelineStageFailures.WithLabelValues(string(StageIndex)).Inc()
		observability.IndexUpserts.WithLabelValues("error").Inc()
	} else {
		observability.IndexUpserts.WithLabelValues("ok").Inc()
	}

	if p.notifier != nil && paper.QualityScore >= p.alertQuality {
		p.notifier.HighQualityPaper(ctx, paper)
	}

	logger.Info().Float64("quality", paper.QualityScore).Msg("paper processed")
	observability.PapersProcessed.WithLabelValues(string(StatusSuccess)).Inc()

	return Result{Status: StatusSuccess, PaperID: paper.ID, Hash: hash}
}

func (p *Processor) review(ctx context.Context, logger *zerolog.Logger, text string) string {
	review, err := p.client.Review(ctx, text)
	if err != nil {
		logger.Warn().Err(err).Msg("critical review failed, continuing without")
		observability.PipelineStageFailures.WithLabelValues(string(StageReview)).Inc()

		return ""
	}

	return review
}

func (p *Processor) snippets(ctx context.Context, logger *zerolog.Logger, text string) llm.Snippets {
	snippets, err := p.client.ExtractSnippets(ctx, text)
	if err != nil {
		logger.Warn().Err(err).Msg("snippet extraction failed, continuing without")
		observability.PipelineStageFailures.WithLabelValues(string(StageSnippets)).Inc()

		return llm.Snippets{}
	}

	return snippets
}

func (p *Processor) applySnippets(paper *db.Paper, s llm.Snippets) {
	paper.SummarySlide = s.SummarySlide
	paper.SampleSize = s.SampleSize
	paper.NNT = s.NNT
	paper.StudyType = s.StudyType
	paper.Specialty = s.Specialty
	paper.Population = s.Population
	paper.QualityScore = s.QualityScore
	paper.Tags = s.Tags

	if paper.Year == 0 {
		paper.Year = s.Year
	}
}

// enrich folds the merged registry record into the paper. Registry values
// override extracted ones when present; model-extracted values fill gaps;
// file-embedded values are last resort, which the COALESCE update preserves.
func (p *Processor) enrich(ctx context.Context, logger *zerolog.Logger, paper *db.Paper, doi string, snippets llm.Snippets) {
	record := p.lookup.Lookup(ctx, doi)
	if record.IsEmpty() {
		observability.MetadataLookups.WithLabelValues("aggregate", "empty").Inc()
		return
	}

	observability.MetadataLookups.WithLabelValues(record.Source, "hit").Inc()

	year := record.Year
	if year == 0 {
		year = snippets.Year
	}

	metadataJSON, err := json.Marshal(record)
	if err != nil {
		logger.Warn().Err(err).Msg("registry record not serializable")
		metadataJSON = nil
	}

	err = p.store.UpdatePaperMetadata(ctx, paper.ID,
		record.Title, record.Journal, year, record.Authors,
		record.Abstract, record.DOI, record.Source, metadataJSON)
	if err != nil {
		logger.Warn().Err(err).Msg("metadata enrichment not persisted")
		observability.PipelineStageFailures.WithLabelValues(string(StageMetadata)).Inc()

		return
	}

	if record.Title != "" {
		paper.Title = record.Title
	}
	if record.Journal != "" {
		paper.Journal = record.Journal
	}
	if len(record.Authors) > 0 {
		paper.Authors = record.Authors
	}
	if record.Abstract != "" {
		paper.Abstract = record.Abstract
	}
	if year > 0 {
		paper.Year = year
	}

	paper.MetadataSource = record.Source
	paper.MetadataJSON = metadataJSON
}

func (p *Processor) analyzeGraphs(ctx context.Context, logger *zerolog.Logger, path, hint string) []byte {
	if p.visuals == nil {
		return nil
	}

	graphs, err := p.visuals.AnalyzeGraphs(ctx, path, hint)
	if err != nil {
		logger.Warn().Err(err).Msg("figure analysis failed, continuing without")
		observability.PipelineStageFailures.WithLabelValues(string(StageVisuals)).Inc()

		return nil
	}

	if len(graphs) == 0 {
		return nil
	}

	raw, err := json.Marshal(graphs)
	if err != nil {
		return nil
	}

	return raw
}

const indexRawTextLimit = 4000

// indexText builds the combined representation pushed into the semantic
// index: title, summary, review, and a truncated slice of the raw text.
func indexText(paper *db.Paper, rawText string) string {
	if len(rawText) > indexRawTextLimit {
		rawText = rawText[:indexRawTextLimit]
	}

	parts := []string{paper.Title, paper.SummarySlide, paper.Abstract, paper.Review, rawText}

	var nonEmpty []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}

	return strings.Join(nonEmpty, "\n\n")
}
