// Package llm wraps the Groq completion service behind a small client
// interface and a rate-limited, retrying call executor. Two model tiers are
// exposed: a deep tier for long-form critical review and a fast tier for
// short structured extraction; a vision tier handles figure description.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse indicates the completion service returned no choices.
var ErrEmptyResponse = errors.New("empty completion response")

// ErrRetriesExhausted indicates a call failed after the full retry budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Snippets is the structured extraction produced by the fast tier for each
// paper. Fields mirror what the catalog displays on a card.
type Snippets struct {
	SampleSize   string   `json:"n_study"`
	NNT          string   `json:"nnt"`
	SummarySlide string   `json:"summary_slide"`
	StudyType    string   `json:"study_type"`
	Specialty    string   `json:"specialty"`
	QualityScore float64  `json:"quality_score"`
	Tags         []string `json:"tags"`
	Population   string   `json:"population"`
	Year         int      `json:"year"`
}

// Quiz is a single-image clinical quiz generated for image-only channels.
type Quiz struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Correct     int      `json:"correct"`
	Explanation string   `json:"explanation"`
}

// Client is the completion-service interface consumed by the document
// processor and the quiz pipeline.
type Client interface {
	// Review produces the long-form critical review of a paper (deep tier).
	Review(ctx context.Context, text string) (string, error)

	// ExtractSnippets produces the structured card fields (fast tier).
	ExtractSnippets(ctx context.Context, text string) (Snippets, error)

	// DescribeImage analyzes a single figure passed as a data URI, with an
	// optional conclusion hint for bias comparison (vision tier).
	DescribeImage(ctx context.Context, dataURI, hint string) (string, error)

	// GenerateQuiz builds a clinical quiz from a single image (vision tier).
	GenerateQuiz(ctx context.Context, dataURI string) (Quiz, error)
}
