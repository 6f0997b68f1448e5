package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlit/paperbot/internal/core/llm"
	"github.com/medlit/paperbot/internal/core/metadata"
	"github.com/medlit/paperbot/internal/db"
	"github.com/medlit/paperbot/internal/extract"
	"github.com/medlit/paperbot/internal/process/visual"
)

type mockExtractor struct {
	extraction extract.Extraction
	err        error
}

func (m *mockExtractor) Extract(context.Context, string) (extract.Extraction, error) {
	return m.extraction, m.err
}

type mockStore struct {
	byHash  map[string]*db.Paper
	creates int

	persistErr error
}

func newMockStore() *mockStore {
	return &mockStore{byHash: map[string]*db.Paper{}}
}

func (m *mockStore) GetPaperByHash(_ context.Context, hash string) (*db.Paper, error) {
	paper, ok := m.byHash[hash]
	if !ok {
		return nil, nil
	}

	copied := *paper

	return &copied, nil
}

func (m *mockStore) CreatePaper(_ context.Context, p *db.Paper) (string, error) {
	m.creates++

	copied := *p
	copied.ID = uuid.NewString()
	m.byHash[p.ContentHash] = &copied

	return copied.ID, nil
}

func (m *mockStore) UpdatePaperMetadata(_ context.Context, id, title, journal string, year int, authors []string, abstract, doi, source string, _ []byte) error {
	for _, paper := range m.byHash {
		if paper.ID != id {
			continue
		}

		if title != "" {
			paper.Title = title
		}
		if journal != "" {
			paper.Journal = journal
		}
		if year > 0 {
			paper.Year = year
		}
		if len(authors) > 0 {
			paper.Authors = authors
		}
		if abstract != "" {
			paper.Abstract = abstract
		}
		if doi != "" {
			paper.DOI = doi
		}
		paper.MetadataSource = source
	}

	return nil
}

func (m *mockStore) MarkProcessed(_ context.Context, p *db.Paper) error {
	if m.persistErr != nil {
		return m.persistErr
	}

	stored, ok := m.byHash[p.ContentHash]
	if !ok {
		return errors.New("paper not found")
	}

	stored.Review = p.Review
	stored.SummarySlide = p.SummarySlide
	stored.QualityScore = p.QualityScore
	stored.Tags = p.Tags
	stored.GraphsJSON = p.GraphsJSON
	if p.Year > 0 {
		stored.Year = p.Year
	}
	stored.Processed = true

	return nil
}

type mockClient struct {
	review      string
	reviewErr   error
	snippets    llm.Snippets
	snippetsErr error
}

func (m *mockClient) Review(context.Context, string) (string, error) {
	return m.review, m.reviewErr
}

func (m *mockClient) ExtractSnippets(context.Context, string) (llm.Snippets, error) {
	return m.snippets, m.snippetsErr
}

func (m *mockClient) DescribeImage(context.Context, string, string) (string, error) {
	return "", nil
}

func (m *mockClient) GenerateQuiz(context.Context, string) (llm.Quiz, error) {
	return llm.Quiz{}, nil
}

type mockLookup struct {
	record metadata.Record
	calls  []string
}

func (m *mockLookup) Lookup(_ context.Context, doi string) metadata.Record {
	m.calls = append(m.calls, doi)
	return m.record
}

type mockAnalyzer struct {
	graphs []visual.Graph
	err    error
}

func (m *mockAnalyzer) AnalyzeGraphs(context.Context, string, string) ([]visual.Graph, error) {
	return m.graphs, m.err
}

type mockIndexer struct {
	upserts map[string]string
	err     error
}

func (m *mockIndexer) Upsert(_ context.Context, paperID, text string) error {
	if m.upserts == nil {
		m.upserts = map[string]string{}
	}
	m.upserts[paperID] = text

	return m.err
}

type mockNotifier struct {
	alerts []string
}

func (m *mockNotifier) HighQualityPaper(_ context.Context, paper *db.Paper) {
	m.alerts = append(m.alerts, paper.ID)
}

type fixture struct {
	extractor *mockExtractor
	store     *mockStore
	client    *mockClient
	lookup    *mockLookup
	analyzer  *mockAnalyzer
	indexer   *mockIndexer
	notifier  *mockNotifier
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		extractor: &mockExtractor{extraction: extract.Extraction{
			Text:      "Remdesivir shortened recovery. DOI 10.1056/NEJMoa2007764.",
			Title:     "Embedded Title",
			PageCount: 12,
		}},
		store: newMockStore(),
		client: &mockClient{
			review:   "## Critical review",
			snippets: llm.Snippets{SummarySlide: "Faster recovery", QualityScore: 8.2, Year: 2020},
		},
		lookup:   &mockLookup{},
		analyzer: &mockAnalyzer{},
		indexer:  &mockIndexer{},
		notifier: &mockNotifier{},
	}

	logger := zerolog.Nop()
	f.processor = New(f.extractor, f.store, f.client, f.lookup, f.analyzer, f.indexer, f.notifier, 9.0, &logger)

	return f
}

func writeTempPDF(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestProcess_Success(t *testing.T) {
	f := newFixture(t)
	path := writeTempPDF(t, "pdf bytes")

	result := f.processor.Process(context.Background(), path)

	require.Equal(t, StatusSuccess, result.Status)
	assert.NotEmpty(t, result.PaperID)
	assert.NotEmpty(t, result.Hash)

	stored := f.store.byHash[result.Hash]
	require.NotNil(t, stored)
	assert.True(t, stored.Processed)
	assert.Equal(t, "## Critical review", stored.Review)
	assert.Equal(t, "Faster recovery", stored.SummarySlide)
	assert.Equal(t, 2020, stored.Year)

	assert.Contains(t, f.indexer.upserts, result.PaperID)
	assert.Contains(t, f.indexer.upserts[result.PaperID], "Embedded Title")
}

func TestProcess_SecondRunIsDuplicate(t *testing.T) {
	f := newFixture(t)
	path := writeTempPDF(t, "identical bytes")

	first := f.processor.Process(context.Background(), path)
	require.Equal(t, StatusSuccess, first.Status)

	second := f.processor.Process(context.Background(), path)
	require.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, first.PaperID, second.PaperID)
	assert.Equal(t, first.Hash, second.Hash)

	assert.Equal(t, 1, f.store.creates)
}

func TestProcess_ResumesUnfinishedPaper(t *testing.T) {
	f := newFixture(t)
	path := writeTempPDF(t, "crashed mid-pipeline")

	first := f.processor.Process(context.Background(), path)
	require.Equal(t, StatusSuccess, first.Status)

	// Simulate the earlier crash: record exists but was never finalized.
	f.store.byHash[first.Hash].Processed = false

	second := f.processor.Process(context.Background(), path)
	require.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, first.PaperID, second.PaperID)
	assert.Equal(t, 1, f.store.creates)
	assert.True(t, f.store.byHash[first.Hash].Processed)
}

func TestProcess_DegradesWhenAnalysisFails(t *testing.T) {
	f := newFixture(t)
	f.client.reviewErr = errors.New("retries exhausted")
	f.client.snippetsErr = errors.New("retries exhausted")
	f.analyzer.err = errors.New("no figures")

	path := writeTempPDF(t, "flaky provider")

	result := f.processor.Process(context.Background(), path)

	require.Equal(t, StatusSuccess, result.Status)

	stored := f.store.byHash[result.Hash]
	assert.True(t, stored.Processed)
	assert.Empty(t, stored.Review)
	assert.Empty(t, stored.SummarySlide)
	assert.Nil(t, stored.GraphsJSON)
}

func TestProcess_EnrichesWhenDOIFound(t *testing.T) {
	f := newFixture(t)
	f.lookup.record = metadata.Record{
		Title:   "Registry Title",
		Journal: "N Engl J Med",
		Year:    2020,
		Source:  "merged",
	}

	path := writeTempPDF(t, "paper with doi")

	result := f.processor.Process(context.Background(), path)

	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, []string{"10.1056/NEJMoa2007764"}, f.lookup.calls)

	stored := f.store.byHash[result.Hash]
	assert.Equal(t, "Registry Title", stored.Title)
	assert.Equal(t, "N Engl J Med", stored.Journal)
	assert.Equal(t, "merged", stored.MetadataSource)
}

func TestProcess_NoLookupWithoutDOI(t *testing.T) {
	f := newFixture(t)
	f.extractor.extraction.Text = "no identifier in this text"

	path := writeTempPDF(t, "doi-less paper")

	result := f.processor.Process(context.Background(), path)

	require.Equal(t, StatusSuccess, result.Status)
	assert.Empty(t, f.lookup.calls)

	// No registry record: the model-extracted year still lands in the catalog.
	assert.Equal(t, 2020, f.store.byHash[result.Hash].Year)
}

func TestProcess_ExtractionFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New("not a pdf")

	result := f.processor.Process(context.Background(), writeTempPDF(t, "junk"))

	require.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, StageExtract, result.Stage)
	assert.Zero(t, f.store.creates)
}

func TestProcess_PersistFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.store.persistErr = errors.New("connection lost")

	result := f.processor.Process(context.Background(), writeTempPDF(t, "paper"))

	require.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, StagePersist, result.Stage)
}

func TestProcess_AlertsOnHighQuality(t *testing.T) {
	f := newFixture(t)
	f.client.snippets.QualityScore = 9.4

	result := f.processor.Process(context.Background(), writeTempPDF(t, "landmark trial"))

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, []string{result.PaperID}, f.notifier.alerts)
}

func TestProcess_IndexFailureDoesNotFailDocument(t *testing.T) {
	f := newFixture(t)
	f.indexer.err = errors.New("index unavailable")

	result := f.processor.Process(context.Background(), writeTempPDF(t, "paper"))

	assert.Equal(t, StatusSuccess, result.Status)
}
