package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const (
	// Character caps keep prompts inside the provider context windows.
	reviewTextLimit   = 25000
	snippetsTextLimit = 15000
)

// Models selects the model identifier per tier. Tier choice is always made
// by the caller, never inferred from content.
type Models struct {
	Deep   string
	Fast   string
	Vision string
}

type groqClient struct {
	client   *openai.Client
	executor *Executor
	models   Models
	logger   *zerolog.Logger
}

// NewGroq creates a Client backed by the Groq OpenAI-compatible endpoint.
// Every call is dispatched through the executor for throttling and retry.
func NewGroq(apiKey, baseURL string, models Models, executor *Executor, logger *zerolog.Logger) Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &groqClient{
		client:   openai.NewClientWithConfig(cfg),
		executor: executor,
		models:   models,
		logger:   logger,
	}
}

func (c *groqClient) Review(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(reviewPrompt, truncate(text, reviewTextLimit))

	content, err := c.complete(ctx, c.models.Deep, openai.ChatCompletionRequest{
		Model: c.models.Deep,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("critical review: %w", err)
	}

	return content, nil
}

func (c *groqClient) ExtractSnippets(ctx context.Context, text string) (Snippets, error) {
	prompt := fmt.Sprintf(snippetsPrompt, truncate(text, snippetsTextLimit))

	content, err := c.complete(ctx, c.models.Fast, openai.ChatCompletionRequest{
		Model: c.models.Fast,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Snippets{}, fmt.Errorf("snippet extraction: %w", err)
	}

	var snippets Snippets
	if err := json.Unmarshal([]byte(content), &snippets); err != nil {
		return Snippets{}, fmt.Errorf("parse snippet response: %w", err)
	}

	return snippets, nil
}

func (c *groqClient) DescribeImage(ctx context.Context, dataURI, hint string) (string, error) {
	prompt := fmt.Sprintf(graphPrompt, hint)

	content, err := c.complete(ctx, c.models.Vision, openai.ChatCompletionRequest{
		Model: c.models.Vision,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURI,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("graph description: %w", err)
	}

	return content, nil
}

func (c *groqClient) GenerateQuiz(ctx context.Context, dataURI string) (Quiz, error) {
	content, err := c.complete(ctx, c.models.Vision, openai.ChatCompletionRequest{
		Model: c.models.Vision,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: quizPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: dataURI,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Quiz{}, fmt.Errorf("quiz generation: %w", err)
	}

	var quiz Quiz
	if err := json.Unmarshal([]byte(content), &quiz); err != nil {
		return Quiz{}, fmt.Errorf("parse quiz response: %w", err)
	}

	return quiz, nil
}

// complete dispatches one chat completion through the executor and returns
// the first choice's content.
func (c *groqClient) complete(ctx context.Context, model string, req openai.ChatCompletionRequest) (string, error) {
	var content string

	err := c.executor.Do(ctx, model, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}

		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}

		content = strings.TrimSpace(resp.Choices[0].Message.Content)

		return nil
	})
	if err != nil {
		return "", err
	}

	return content, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max]
}
