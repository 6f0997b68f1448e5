// Package api exposes the curator-facing HTTP surface: uploads, job
// status, semantic search, channel management, and scan control.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/config"
	"github.com/medlit/paperbot/internal/db"
	"github.com/medlit/paperbot/internal/index"
	"github.com/medlit/paperbot/internal/scan"
)

const (
	maxUploadBytes  = 64 << 20
	shutdownTimeout = 10 * time.Second

	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Store is the database surface the API needs.
type Store interface {
	GetPaperByID(ctx context.Context, id string) (*db.Paper, error)
	GetPapersByIDs(ctx context.Context, ids []string) ([]db.Paper, error)
	CountPapers(ctx context.Context) (total, processed int64, err error)
	GetActiveChannels(ctx context.Context) ([]db.Channel, error)
	AddChannel(ctx context.Context, username string, isQuiz bool) error
	DeactivateChannel(ctx context.Context, username string) error
}

// Searcher answers semantic queries over the paper index.
type Searcher interface {
	Query(ctx context.Context, query string, k int) ([]index.Match, error)
}

// ScanControl requests an immediate channel scan.
type ScanControl interface {
	Trigger()
}

type Server struct {
	cfg      *config.Config
	store    Store
	searcher Searcher
	scans    ScanControl
	session  *scan.Session
	queue    *JobQueue
	logger   *zerolog.Logger
}

func NewServer(cfg *config.Config, store Store, searcher Searcher, scans ScanControl, session *scan.Session, queue *JobQueue, logger *zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		searcher: searcher,
		scans:    scans,
		session:  session,
		queue:    queue,
		logger:   logger,
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/upload", s.handleUpload)
	r.Get("/jobs/{id}", s.handleJob)
	r.Get("/papers/{id}", s.handlePaper)
	r.Get("/search", s.handleSearch)
	r.Get("/stats", s.handleStats)

	r.Post("/scan", s.handleScanTrigger)
	r.Get("/scan/status", s.handleScanStatus)

	r.Get("/channels", s.handleListChannels)
	r.Post("/channels", s.handleAddChannel)
	r.Delete("/channels/{username}", s.handleRemoveChannel)

	return r
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.APIPort),
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.cfg.APIPort).Msg("API server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}

	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: "only PDF uploads are accepted"})
		return
	}

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to store upload")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to store upload"})

		return
	}

	job := s.queue.Enqueue(header.Filename, path)
	s.logger.Info().Str("job_id", job.ID).Str("file", header.Filename).Msg("upload accepted")

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) saveUpload(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + "_" + sanitizeUploadName(filename)
	path := filepath.Join(s.cfg.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	return path, nil
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}

	writeJSON(w, http.StatusOK, job)
}

type paperResponse struct {
	ID           string          `json:"id"`
	DOI          string          `json:"doi,omitempty"`
	Title        string          `json:"title"`
	Journal      string          `json:"journal,omitempty"`
	Year         int             `json:"year,omitempty"`
	Authors      []string        `json:"authors,omitempty"`
	Abstract     string          `json:"abstract,omitempty"`
	Review       string          `json:"review,omitempty"`
	SummarySlide string          `json:"summary_slide,omitempty"`
	SampleSize   string          `json:"sample_size,omitempty"`
	NNT          string          `json:"nnt,omitempty"`
	StudyType    string          `json:"study_type,omitempty"`
	Specialty    string          `json:"specialty,omitempty"`
	Population   string          `json:"population,omitempty"`
	QualityScore float64         `json:"quality_score,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Graphs       json.RawMessage `json:"graphs,omitempty"`
	Quiz         json.RawMessage `json:"quiz,omitempty"`
	IsQuiz       bool            `json:"is_quiz,omitempty"`
	Processed    bool            `json:"processed"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toPaperResponse(p *db.Paper) paperResponse {
	return paperResponse{
		ID:           p.ID,
		DOI:          p.DOI,
		Title:        p.Title,
		Journal:      p.Journal,
		Year:         p.Year,
		Authors:      p.Authors,
		Abstract:     p.Abstract,
		Review:       p.Review,
		SummarySlide: p.SummarySlide,
		SampleSize:   p.SampleSize,
		NNT:          p.NNT,
		StudyType:    p.StudyType,
		Specialty:    p.Specialty,
		Population:   p.Population,
		QualityScore: p.QualityScore,
		Tags:         p.Tags,
		Metadata:     json.RawMessage(p.MetadataJSON),
		Graphs:       json.RawMessage(p.GraphsJSON),
		Quiz:         json.RawMessage(p.QuizJSON),
		IsQuiz:       p.IsQuiz,
		Processed:    p.Processed,
		CreatedAt:    p.CreatedAt,
	}
}

func (s *Server) handlePaper(w http.ResponseWriter, r *http.Request) {
	paper, err := s.store.GetPaperByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load paper")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load paper"})

		return
	}

	if paper == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "paper not found"})
		return
	}

	writeJSON(w, http.StatusOK, toPaperResponse(paper))
}

type searchHit struct {
	paperResponse
	Distance float32 `json:"distance"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}

	limit := clampInt(r.URL.Query().Get("limit"), defaultSearchLimit, maxSearchLimit)

	matches, err := s.searcher.Query(r.Context(), query, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("search failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "search failed"})

		return
	}

	ids := make([]string, 0, len(matches))
	distances := make(map[string]float32, len(matches))

	for _, m := range matches {
		ids = append(ids, m.PaperID)
		distances[m.PaperID] = m.Distance
	}

	papers, err := s.store.GetPapersByIDs(r.Context(), ids)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load search results")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load search results"})

		return
	}

	hits := make([]searchHit, 0, len(papers))
	for i := range papers {
		hits = append(hits, searchHit{
			paperResponse: toPaperResponse(&papers[i]),
			Distance:      distances[papers[i].ID],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": hits})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, processed, err := s.store.CountPapers(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to count papers")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to count papers"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"papers_total":     total,
		"papers_processed": processed,
	})
}

func (s *Server) handleScanTrigger(w http.ResponseWriter, r *http.Request) {
	s.scans.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scan requested"})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type channelResponse struct {
	Username      string    `json:"username"`
	Title         string    `json:"title,omitempty"`
	IsQuiz        bool      `json:"is_quiz"`
	LastMessageID int64     `json:"last_message_id"`
	LastScanAt    time.Time `json:"last_scan_at,omitempty"`
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.GetActiveChannels(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list channels")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list channels"})

		return
	}

	out := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelResponse{
			Username:      ch.Username,
			Title:         ch.Title,
			IsQuiz:        ch.IsQuiz,
			LastMessageID: ch.LastMessageID,
			LastScanAt:    ch.LastScanAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

type addChannelRequest struct {
	Username string `json:"username"`
	IsQuiz   bool   `json:"is_quiz"`
}

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var req addChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	username := normalizeUsername(req.Username)
	if username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing username"})
		return
	}

	if err := s.store.AddChannel(r.Context(), username, req.IsQuiz); err != nil {
		s.logger.Error().Err(err).Str("channel", username).Msg("failed to add channel")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to add channel"})

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"username": username, "is_quiz": req.IsQuiz})
}

func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	username := normalizeUsername(chi.URLParam(r, "username"))

	if err := s.store.DeactivateChannel(r.Context(), username); err != nil {
		s.logger.Error().Err(err).Str("channel", username).Msg("failed to deactivate channel")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to deactivate channel"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"username": username, "status": "deactivated"})
}

func normalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

func sanitizeUploadName(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")

	return name
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}

	if value > max {
		return max
	}

	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
