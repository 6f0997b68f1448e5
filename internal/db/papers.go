package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Paper is one cataloged document. ContentHash is globally unique and is
// the sole deduplication key; the unique index is the concurrency guard
// when two scans discover the same file.
type Paper struct {
	ID          string
	ContentHash string
	DOI         string
	Title       string
	Journal     string
	Year        int
	Authors     []string
	Abstract    string
	PageCount   int
	FilePath    string

	Review       string
	SummarySlide string
	SampleSize   string
	NNT          string
	StudyType    string
	Specialty    string
	Population   string
	QualityScore float64
	Tags         []string

	// MetadataJSON holds the merged registry record; GraphsJSON and
	// QuizJSON hold the visual and quiz analyses. All three are raw JSONB.
	MetadataJSON   []byte
	MetadataSource string
	GraphsJSON     []byte
	QuizJSON       []byte
	IsQuiz         bool

	Processed  bool
	CreatedAt  time.Time
	AnalyzedAt time.Time
}

const paperColumns = `id, content_hash, doi, title, journal, year, authors, abstract,
	page_count, file_path, review, summary_slide, sample_size, nnt, study_type,
	specialty, population, quality_score, tags, metadata_json, metadata_source,
	graphs_json, quiz_json, is_quiz, processed, created_at, analyzed_at`

// GetPaperByHash returns nil without error when no paper has the hash.
func (db *DB) GetPaperByHash(ctx context.Context, hash string) (*Paper, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE content_hash = $1`, hash)

	paper, err := scanPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get paper by hash: %w", err)
	}

	return paper, nil
}

func (db *DB) GetPaperByID(ctx context.Context, id string) (*Paper, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE id = $1`, toUUID(id))

	paper, err := scanPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get paper by id: %w", err)
	}

	return paper, nil
}

func (db *DB) GetPapersByIDs(ctx context.Context, ids []string) ([]Paper, error) {
	uuids := make([]pgtype.UUID, len(ids))
	for i, id := range ids {
		uuids[i] = toUUID(id)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE id = ANY($1)`, uuids)
	if err != nil {
		return nil, fmt.Errorf("get papers by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Paper)
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("get papers by ids: %w", err)
		}
		byID[paper.ID] = *paper
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the caller's ranking order.
	papers := make([]Paper, 0, len(ids))
	for _, id := range ids {
		if paper, ok := byID[id]; ok {
			papers = append(papers, paper)
		}
	}

	return papers, nil
}

// CreatePaper inserts a new unprocessed record and returns its id.
func (db *DB) CreatePaper(ctx context.Context, p *Paper) (string, error) {
	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO papers (content_hash, doi, title, journal, authors, page_count, file_path, is_quiz)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		p.ContentHash, toText(p.DOI), toText(p.Title), toText(p.Journal),
		p.Authors, toInt4(p.PageCount), toText(p.FilePath), p.IsQuiz,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create paper: %w", err)
	}

	return fromUUID(id), nil
}

// UpdatePaperMetadata patches the registry-derived fields. Safe to call on
// already-processed papers during re-enrichment; it never touches the
// processed flag.
func (db *DB) UpdatePaperMetadata(ctx context.Context, id string, title, journal string, year int, authors []string, abstract, doi, source string, metadataJSON []byte) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE papers SET
			title = COALESCE(NULLIF($2, ''), title),
			journal = COALESCE(NULLIF($3, ''), journal),
			year = CASE WHEN $4 > 0 THEN $4 ELSE year END,
			authors = CASE WHEN cardinality($5::text[]) > 0 THEN $5 ELSE authors END,
			abstract = COALESCE(NULLIF($6, ''), abstract),
			doi = COALESCE(NULLIF($7, ''), doi),
			metadata_source = COALESCE(NULLIF($8, ''), metadata_source),
			metadata_json = COALESCE($9, metadata_json)
		WHERE id = $1`,
		toUUID(id), title, journal, year, authors, abstract, doi, source, metadataJSON)
	if err != nil {
		return fmt.Errorf("update paper metadata: %w", err)
	}

	return nil
}

// MarkProcessed persists the analysis output and finalizes the record for
// the catalog. The year is written guarded: for papers without a registry
// record the model-extracted year is the only one there is, and a zero must
// never clobber a year already present on the row.
func (db *DB) MarkProcessed(ctx context.Context, p *Paper) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE papers SET
			review = $2,
			summary_slide = $3,
			sample_size = $4,
			nnt = $5,
			study_type = $6,
			specialty = $7,
			population = $8,
			quality_score = $9,
			tags = $10,
			graphs_json = $11,
			quiz_json = $12,
			year = CASE WHEN $13 > 0 THEN $13 ELSE year END,
			processed = TRUE,
			analyzed_at = NOW()
		WHERE id = $1`,
		toUUID(p.ID), toText(p.Review), toText(p.SummarySlide), toText(p.SampleSize),
		toText(p.NNT), toText(p.StudyType), toText(p.Specialty), toText(p.Population),
		toFloat8(p.QualityScore), p.Tags, p.GraphsJSON, p.QuizJSON, p.Year)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark processed: paper %s not found", p.ID)
	}

	return nil
}

func (db *DB) CountPapers(ctx context.Context) (total, processed int64, err error) {
	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE processed) FROM papers`,
	).Scan(&total, &processed)
	if err != nil {
		return 0, 0, fmt.Errorf("count papers: %w", err)
	}

	return total, processed, nil
}

func scanPaper(row pgx.Row) (*Paper, error) {
	var (
		p          Paper
		id         pgtype.UUID
		doi        pgtype.Text
		title      pgtype.Text
		journal    pgtype.Text
		year       pgtype.Int4
		abstract   pgtype.Text
		pageCount  pgtype.Int4
		filePath   pgtype.Text
		review     pgtype.Text
		slide      pgtype.Text
		sampleSize pgtype.Text
		nnt        pgtype.Text
		studyType  pgtype.Text
		specialty  pgtype.Text
		population pgtype.Text
		quality    pgtype.Float8
		source     pgtype.Text
		created    pgtype.Timestamptz
		analyzed   pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &p.ContentHash, &doi, &title, &journal, &year, &p.Authors, &abstract,
		&pageCount, &filePath, &review, &slide, &sampleSize, &nnt, &studyType,
		&specialty, &population, &quality, &p.Tags, &p.MetadataJSON, &source,
		&p.GraphsJSON, &p.QuizJSON, &p.IsQuiz, &p.Processed, &created, &analyzed,
	)
	if err != nil {
		return nil, err
	}

	p.ID = fromUUID(id)
	p.DOI = doi.String
	p.Title = title.String
	p.Journal = journal.String
	p.Year = int(year.Int32)
	p.Abstract = abstract.String
	p.PageCount = int(pageCount.Int32)
	p.FilePath = filePath.String
	p.Review = review.String
	p.SummarySlide = slide.String
	p.SampleSize = sampleSize.String
	p.NNT = nnt.String
	p.StudyType = studyType.String
	p.Specialty = specialty.String
	p.Population = population.String
	p.QualityScore = quality.Float64
	p.MetadataSource = source.String
	p.CreatedAt = created.Time
	p.AnalyzedAt = analyzed.Time

	return &p, nil
}
