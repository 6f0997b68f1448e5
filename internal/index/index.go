// Package index maintains the semantic search index: one pgvector embedding
// per processed paper, queried with cosine distance.
package index

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/db"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Match is one ranked search hit.
type Match struct {
	PaperID  string
	Summary  string
	Distance float32
}

// Index writes and queries the paper_index table.
type Index struct {
	db       *db.DB
	embedder Embedder
	logger   *zerolog.Logger
}

func New(database *db.DB, embedder Embedder, logger *zerolog.Logger) *Index {
	return &Index{
		db:       database,
		embedder: embedder,
		logger:   logger,
	}
}

const embedTextLimit = 8000

// Upsert embeds the paper's combined text and stores it keyed by paper id.
// Re-indexing an existing paper replaces its vector.
func (i *Index) Upsert(ctx context.Context, paperID, text string) error {
	if len(text) > embedTextLimit {
		text = text[:embedTextLimit]
	}

	embedding, err := i.embedder.GetEmbedding(ctx, text)
	if err != nil {
		return fmt.Errorf("embed paper %s: %w", paperID, err)
	}

	_, err = i.db.Pool.Exec(ctx, `
		INSERT INTO paper_index (paper_id, embedding, summary, updated_at)
		VALUES ($1, $2, LEFT($3, 500), NOW())
		ON CONFLICT (paper_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			summary = EXCLUDED.summary,
			updated_at = NOW()`,
		paperID, pgvector.NewVector(embedding), text)
	if err != nil {
		return fmt.Errorf("upsert paper index: %w", err)
	}

	return nil
}

// Query returns the k nearest papers to the query text by cosine distance.
func (i *Index) Query(ctx context.Context, query string, k int) ([]Match, error) {
	embedding, err := i.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := i.db.Pool.Query(ctx, `
		SELECT paper_id, summary, embedding <=> $1::vector AS distance
		FROM paper_index
		ORDER BY embedding <=> $1::vector
		LIMIT $2`,
		pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query paper index: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.PaperID, &m.Summary, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan index match: %w", err)
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}
