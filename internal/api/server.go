package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scrumpilot-io/scrumpilot/internal/extract"
	"github.com/scrumpilot-io/scrumpilot/internal/gitlab"
	"github.com/scrumpilot-io/scrumpilot/internal/ingest"
	"github.com/scrumpilot-io/scrumpilot/internal/logring"
	"github.com/scrumpilot-io/scrumpilot/internal/pipeline"
	"github.com/scrumpilot-io/scrumpilot/internal/syncer"
	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// LogQuerier abstracts log querying to avoid coupling to logring directly.
type LogQuerier interface {
	Entries(since time.Time, minLevel slog.Level, limit int) []logring.Entry
}

// WebhookReceiver handles pushed transcript segments.
type WebhookReceiver interface {
	Handle(source string, req *http.Request) (int, string)
}

// Service is the interface the API server needs from the application core.
type Service interface {
	ParseTranscript(ctx context.Context, transcript, speaker string) ([]protocol.UpdateIntent, error)
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
	ProcessMeeting(ctx context.Context, projectID, transcript string, autoSync bool) (*pipeline.ProcessResult, error)
	SyncIntent(ctx context.Context, intent protocol.UpdateIntent) (protocol.SyncResult, error)
	SyncIntents(ctx context.Context, intents []protocol.UpdateIntent) []protocol.SyncResult

	ListMeetings(projectID string) ([]*protocol.Meeting, error)
	GetMeeting(id string) (*protocol.Meeting, error)
	ListMeetingUpdates(meetingID string) ([]*protocol.UpdateRecord, error)
	MeetingStats() (*protocol.MeetingStats, error)
	ListUnsynced() ([]*protocol.UpdateRecord, error)

	Statuses(ctx context.Context) []protocol.StatusDescriptor
	ValidateTracker(ctx context.Context) (*gitlab.Project, error)
	ListIssues(ctx context.Context, state string) ([]gitlab.Issue, error)
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the ScrumPilot REST API server.
type Server struct {
	svc     Service
	cfg     Config
	logger  *slog.Logger
	logs    LogQuerier
	webhook WebhookReceiver
	srv     *http.Server
}

// NewServer creates a new API server. logs and webhook may be nil.
func NewServer(svc Service, cfg Config, logger *slog.Logger, logs LogQuerier, webhook WebhookReceiver) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:     svc,
		cfg:     cfg,
		logger:  logger,
		logs:    logs,
		webhook: webhook,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/transcripts/parse", s.requireAuth(s.handleParse))
	mux.HandleFunc("POST /api/transcribe", s.requireAuth(s.handleTranscribe))
	mux.HandleFunc("POST /api/meetings/process", s.requireAuth(s.handleProcess))
	mux.HandleFunc("POST /api/sync", s.requireAuth(s.handleSync))
	mux.HandleFunc("POST /api/sync/batch", s.requireAuth(s.handleSyncBatch))
	mux.HandleFunc("GET /api/meetings", s.requireAuth(s.handleListMeetings))
	mux.HandleFunc("GET /api/meetings/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("GET /api/meetings/{id}", s.requireAuth(s.handleGetMeeting))
	mux.HandleFunc("GET /api/updates/unsynced", s.requireAuth(s.handleUnsynced))
	mux.HandleFunc("GET /api/statuses", s.requireAuth(s.handleStatuses))
	mux.HandleFunc("POST /api/tracker/validate", s.requireAuth(s.handleValidate))
	mux.HandleFunc("GET /api/issues", s.requireAuth(s.handleIssues))
	mux.HandleFunc("POST /api/webhook/{source}", s.handleWebhook)
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type parseRequest struct {
	Transcript string `json:"transcript"`
	Speaker    string `json:"speaker,omitempty"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}

	intents, err := s.svc.ParseTranscript(r.Context(), req.Transcript, req.Speaker)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if intents == nil {
		intents = []protocol.UpdateIntent{}
	}

	var avg float64
	for _, in := range intents {
		avg += in.Confidence
	}
	if len(intents) > 0 {
		avg /= float64(len(intents))
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": intents, "averageConfidence": avg})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required", "")
		return
	}
	defer file.Close()

	text, err := s.svc.Transcribe(r.Context(), file, header.Filename)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcript": text})
}

type processRequest struct {
	ProjectID     string `json:"projectId,omitempty"`
	Transcript    string `json:"transcript,omitempty"`
	TranscriptURL string `json:"transcriptUrl,omitempty"`
	AutoSync      bool   `json:"autoSync,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}

	if req.Transcript == "" && req.TranscriptURL != "" {
		text, err := ingest.FetchTranscript(r.Context(), req.TranscriptURL)
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to fetch transcript", err.Error())
			return
		}
		req.Transcript = text
	}

	result, err := s.svc.ProcessMeeting(r.Context(), req.ProjectID, req.Transcript, req.AutoSync)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// syncRequest is an UpdateIntent that also accepts the comment text under the
// legacy "description" key.
type syncRequest struct {
	protocol.UpdateIntent
	Description string `json:"description,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}
	intent := req.UpdateIntent
	if intent.Action == "" {
		intent.Action = req.Description
	}
	if intent.IssueID == "" {
		writeError(w, http.StatusBadRequest, "issueId is required", "")
		return
	}

	result, err := s.svc.SyncIntent(r.Context(), intent)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type syncBatchRequest struct {
	Updates []protocol.UpdateIntent `json:"updates"`
}

func (s *Server) handleSyncBatch(w http.ResponseWriter, r *http.Request) {
	var req syncBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}

	results := s.svc.SyncIntents(r.Context(), req.Updates)
	if results == nil {
		results = []protocol.SyncResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.svc.ListMeetings(r.URL.Query().Get("project"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if meetings == nil {
		meetings = []*protocol.Meeting{}
	}
	writeJSON(w, http.StatusOK, meetings)
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.GetMeeting(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "meeting not found", "")
		return
	}
	updates, err := s.svc.ListMeetingUpdates(m.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if updates == nil {
		updates = []*protocol.UpdateRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"meeting": m, "updates": updates})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.svc.MeetingStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUnsynced(w http.ResponseWriter, _ *http.Request) {
	updates, err := s.svc.ListUnsynced()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if updates == nil {
		updates = []*protocol.UpdateRecord{}
	}
	writeJSON(w, http.StatusOK, updates)
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Statuses(r.Context()))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	project, err := s.svc.ValidateTracker(r.Context())
	if err != nil {
		if apiErr, ok := gitlab.AsAPIError(err); ok {
			switch {
			case apiErr.InvalidCredentials():
				writeError(w, http.StatusUnauthorized, "tracker rejected credentials", "")
			case apiErr.NotFound():
				writeError(w, http.StatusNotFound, "project not found", "")
			default:
				writeError(w, http.StatusBadGateway, "tracker error", apiErr.Error())
			}
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "project": project})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.svc.ListIssues(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if issues == nil {
		issues = []gitlab.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		writeError(w, http.StatusNotFound, "webhook ingestion disabled", "")
		return
	}
	status, msg := s.webhook.Handle(r.PathValue("source"), r)
	if msg != "" {
		writeError(w, status, msg, "")
		return
	}
	writeJSON(w, status, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logring.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		switch strings.ToLower(lvl) {
		case "info":
			minLevel = slog.LevelInfo
		case "warn":
			minLevel = slog.LevelWarn
		case "error":
			minLevel = slog.LevelError
		}
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Entries(since, minLevel, limit)
	if entries == nil {
		entries = []logring.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

// writeServiceError maps core errors to HTTP statuses: bad input is 400, an
// unconfigured tracker is 503, everything else is 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extract.ErrEmptyTranscript):
		writeError(w, http.StatusBadRequest, "transcript is empty", "")
	case errors.Is(err, syncer.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "tracker not configured", "")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	body := map[string]string{"error": msg}
	if details != "" {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
