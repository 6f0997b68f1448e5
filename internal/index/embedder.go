package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

var ErrEmptyEmbedding = errors.New("empty embedding response")

const embedderRPS = 2

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbedder{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(embedderRPS), 1),
	}
}

func (e *OpenAIEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedder rate limiter: %w", err)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return resp.Data[0].Embedding, nil
}
