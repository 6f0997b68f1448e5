package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlit/paperbot/internal/config"
	"github.com/medlit/paperbot/internal/db"
	"github.com/medlit/paperbot/internal/index"
	"github.com/medlit/paperbot/internal/process/processor"
	"github.com/medlit/paperbot/internal/scan"
)

type mockStore struct {
	papers   map[string]*db.Paper
	channels []db.Channel

	addedUsername string
	addedQuiz     bool
	deactivated   string
}

func (m *mockStore) GetPaperByID(_ context.Context, id string) (*db.Paper, error) {
	return m.papers[id], nil
}

func (m *mockStore) GetPapersByIDs(_ context.Context, ids []string) ([]db.Paper, error) {
	out := make([]db.Paper, 0, len(ids))

	for _, id := range ids {
		if p, ok := m.papers[id]; ok {
			out = append(out, *p)
		}
	}

	return out, nil
}

func (m *mockStore) CountPapers(context.Context) (int64, int64, error) {
	return int64(len(m.papers)), int64(len(m.papers)), nil
}

func (m *mockStore) GetActiveChannels(context.Context) ([]db.Channel, error) {
	return m.channels, nil
}

func (m *mockStore) AddChannel(_ context.Context, username string, isQuiz bool) error {
	m.addedUsername = username
	m.addedQuiz = isQuiz

	return nil
}

func (m *mockStore) DeactivateChannel(_ context.Context, username string) error {
	m.deactivated = username

	return nil
}

type mockSearcher struct {
	matches []index.Match
	err     error
}

func (m *mockSearcher) Query(context.Context, string, int) ([]index.Match, error) {
	return m.matches, m.err
}

type mockScans struct {
	triggered int
}

func (m *mockScans) Trigger() { m.triggered++ }

type testServer struct {
	*Server
	store    *mockStore
	searcher *mockSearcher
	scans    *mockScans
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	cfg := &config.Config{UploadDir: t.TempDir()}

	store := &mockStore{papers: map[string]*db.Paper{}}
	searcher := &mockSearcher{}
	scans := &mockScans{}

	srv := NewServer(cfg, store, searcher, scans, scan.NewSession(), NewJobQueue(), &logger)

	return &testServer{Server: srv, store: store, searcher: searcher, scans: scans}
}

func multipartPDF(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)

	_, err = part.Write([]byte("%PDF-1.4 test payload"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestUpload_AcceptsPDF(t *testing.T) {
	srv := newTestServer(t)
	router := srv.router()

	body, contentType := multipartPDF(t, "nejm study.pdf")

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var job Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, "nejm study.pdf", job.Filename)

	// Job is retrievable while queued.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartPDF(t, "notes.docx")

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestJob_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaper_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/papers/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch_ReturnsRankedHits(t *testing.T) {
	srv := newTestServer(t)

	srv.store.papers["p1"] = &db.Paper{ID: "p1", Title: "Dexamethasone in COVID-19"}
	srv.store.papers["p2"] = &db.Paper{ID: "p2", Title: "Remdesivir outcomes"}
	srv.searcher.matches = []index.Match{
		{PaperID: "p2", Distance: 0.12},
		{PaperID: "p1", Distance: 0.31},
	}

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=steroids", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Query   string      `json:"query"`
		Results []searchHit `json:"results"`
	}

	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "p2", resp.Results[0].ID)
	assert.InDelta(t, 0.12, resp.Results[0].Distance, 1e-6)
	assert.Equal(t, "p1", resp.Results[1].ID)
}

func TestSearch_MissingQuery(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_IndexFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.searcher.err = errors.New("embedding service down")

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestScanTrigger(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/scan", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, srv.scans.triggered)
}

func TestAddChannel_NormalizesUsername(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"username": " @Cardio_Papers ", "is_quiz": true}`)
	req := httptest.NewRequest(http.MethodPost, "/channels", body)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Cardio_Papers", srv.store.addedUsername)
	assert.True(t, srv.store.addedQuiz)
}

func TestAddChannel_RequiresUsername(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/channels", strings.NewReader(`{}`))

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveChannel(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/channels/@medlit", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "medlit", srv.store.deactivated)
}

type mockPipeline struct {
	result processor.Result
}

func (m *mockPipeline) Process(context.Context, string) processor.Result {
	return m.result
}

func TestRunner_DrainsQueue(t *testing.T) {
	logger := zerolog.Nop()
	queue := NewJobQueue()

	job := queue.Enqueue("paper.pdf", "/tmp/paper.pdf")

	runner := NewRunner(queue, &mockPipeline{result: processor.Result{
		Status:  processor.StatusSuccess,
		PaperID: "p1",
	}}, &logger)

	require.NoError(t, runner.step(context.Background()))

	got, ok := queue.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobDone, got.Status)
	assert.Equal(t, "p1", got.PaperID)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestRunner_RecordsFailure(t *testing.T) {
	logger := zerolog.Nop()
	queue := NewJobQueue()

	job := queue.Enqueue("paper.pdf", "/tmp/paper.pdf")

	runner := NewRunner(queue, &mockPipeline{result: processor.Result{
		Status: processor.StatusFailed,
		Stage:  processor.StageExtract,
		Err:    errors.New("unreadable file"),
	}}, &logger)

	require.NoError(t, runner.step(context.Background()))

	got, ok := queue.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobFailed, got.Status)
	assert.Contains(t, got.Detail, "unreadable")
}

func TestRunner_EmptyQueueIsNoop(t *testing.T) {
	logger := zerolog.Nop()
	runner := NewRunner(NewJobQueue(), &mockPipeline{}, &logger)

	assert.NoError(t, runner.step(context.Background()))
}
