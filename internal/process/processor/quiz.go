package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/core/fingerprint"
	"github.com/medlit/paperbot/internal/core/llm"
	"github.com/medlit/paperbot/internal/db"
	"github.com/medlit/paperbot/internal/observability"
)

// StageQuiz is the quiz-generation step of the image pipeline.
const StageQuiz Stage = "quiz"

// QuizGenerator builds a quiz from an image on disk.
type QuizGenerator interface {
	FromImage(ctx context.Context, path string) (llm.Quiz, error)
}

// QuizProcessor runs quiz-channel images through the same dedup gate and
// persistence as papers. Unlike paper analysis, quiz generation is not
// degradable: the quiz is the content, so its failure fails the item.
type QuizProcessor struct {
	store     Store
	generator QuizGenerator
	logger    *zerolog.Logger
}

func NewQuizProcessor(store Store, generator QuizGenerator, logger *zerolog.Logger) *QuizProcessor {
	return &QuizProcessor{
		store:     store,
		generator: generator,
		logger:    logger,
	}
}

func (p *QuizProcessor) ProcessImage(ctx context.Context, path string) Result {
	hash, err := fingerprint.HashFile(path)
	if err != nil {
		return failedResult(StageExtract, "", fmt.Errorf("fingerprint: %w", err))
	}

	existing, err := p.store.GetPaperByHash(ctx, hash)
	if err != nil {
		return failedResult(StageDedup, hash, fmt.Errorf("dedup lookup: %w", err))
	}

	var paper *db.Paper

	switch {
	case existing != nil && existing.Processed:
		return duplicateResult(existing.ID, hash, "image already cataloged")

	case existing != nil:
		paper = existing

	default:
		paper = &db.Paper{
			ContentHash: hash,
			FilePath:    path,
			IsQuiz:      true,
		}

		paper.ID, err = p.store.CreatePaper(ctx, paper)
		if err != nil {
			return failedResult(StageCreate, hash, fmt.Errorf("create quiz record: %w", err))
		}
	}

	quiz, err := p.generator.FromImage(ctx, path)
	if err != nil {
		observability.PipelineStageFailures.WithLabelValues(string(StageQuiz)).Inc()
		return failedResult(StageQuiz, hash, err)
	}

	paper.QuizJSON, err = json.Marshal(quiz)
	if err != nil {
		return failedResult(StageQuiz, hash, fmt.Errorf("serialize quiz: %w", err))
	}

	if err := p.store.MarkProcessed(ctx, paper); err != nil {
		return failedResult(StagePersist, hash, fmt.Errorf("mark processed: %w", err))
	}

	p.logger.Info().Str("paper_id", paper.ID).Str("image", path).Msg("quiz cataloged")

	return Result{Status: StatusSuccess, PaperID: paper.ID, Hash: hash}
}
