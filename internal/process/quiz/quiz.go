// Package quiz turns a single clinical teaching image into a multiple-choice
// question via the vision tier. Channels flagged is_quiz route their photos
// here instead of the document pipeline.
package quiz

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/core/llm"
	"github.com/medlit/paperbot/internal/process/visual"
)

type Pipeline struct {
	client llm.Client
	logger *zerolog.Logger
}

func NewPipeline(client llm.Client, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{
		client: client,
		logger: logger,
	}
}

// FromImage builds a quiz from the image at path.
func (p *Pipeline) FromImage(ctx context.Context, path string) (llm.Quiz, error) {
	dataURI, err := visual.EncodeDataURI(path)
	if err != nil {
		return llm.Quiz{}, fmt.Errorf("read quiz image: %w", err)
	}

	quiz, err := p.client.GenerateQuiz(ctx, dataURI)
	if err != nil {
		return llm.Quiz{}, fmt.Errorf("generate quiz: %w", err)
	}

	if quiz.Question == "" || len(quiz.Options) < 2 {
		return llm.Quiz{}, fmt.Errorf("generate quiz: degenerate quiz for %s", path)
	}

	p.logger.Info().Str("image", path).Str("question", quiz.Question).Msg("quiz generated")

	return quiz, nil
}
