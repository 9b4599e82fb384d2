// Package handler serves the marksheet JSON API: exam templates, grading
// sessions, grading history, analytics and exports.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/linkalls/marksheet/internal/debuglog"
	"github.com/linkalls/marksheet/internal/exam"
	appI18n "github.com/linkalls/marksheet/internal/i18n"
	"github.com/linkalls/marksheet/internal/llm"
	"github.com/linkalls/marksheet/internal/model"
	"github.com/linkalls/marksheet/internal/store"
)

// AI is the model-backed collaborator used for detection and generation.
type AI interface {
	Detect(ctx context.Context, cfg model.ExamConfig, img llm.Image) ([]model.VisionGradeResult, error)
	Generate(ctx context.Context, req llm.GenerateRequest) (model.ExamConfig, error)
}

// ExamLibrary persists exam templates.
type ExamLibrary interface {
	List() ([]model.SavedExam, error)
	Get(id string) (model.SavedExam, error)
	Save(id string, cfg model.ExamConfig) (model.SavedExam, error)
	Delete(id string) error
	Duplicate(id string) (model.SavedExam, error)
}

// GradingHistory persists grading records.
type GradingHistory interface {
	List() ([]model.GradingRecord, error)
	Add(rec model.GradingRecord) (model.GradingRecord, error)
	Delete(id string) error
	Clear() error
	ForExam(title string) ([]model.GradingRecord, error)
}

// Config holds the optional settings of a Handler.
type Config struct {
	// AdminPassword enables basic auth on mutating routes when set.
	AdminPassword string
	// CORSOrigins lists the origins allowed to call the API.
	CORSOrigins []string
	// MaxFileMB bounds uploads. Zero means exam.DefaultMaxFileMB.
	MaxFileMB int
	// Lang is the fallback language for translated messages.
	Lang string
	// Debug exposes recent log records at /api/debug/logs when non-nil.
	Debug    *debuglog.Buffer
	Location *time.Location
	Logger   *slog.Logger
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	ai        AI
	exams     ExamLibrary
	history   GradingHistory
	sessions  *sessionRegistry
	adminHash []byte
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
}

// New creates a new Handler.
func New(ai AI, exams ExamLibrary, history GradingHistory, cfg Config) (*Handler, error) {
	if cfg.MaxFileMB <= 0 {
		cfg.MaxFileMB = exam.DefaultMaxFileMB
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		ai:       ai,
		exams:    exams,
		history:  history,
		sessions: newSessionRegistry(),
		cfg:      cfg,
		log:      cfg.Logger,
		now:      time.Now,
	}
	if cfg.AdminPassword != "" {
		hash, err := hashPassword(cfg.AdminPassword)
		if err != nil {
			return nil, err
		}
		h.adminHash = hash
	}
	return h, nil
}

// Router builds the full chi router with middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(h.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(appI18n.Middleware(h.cfg.Lang))
	r.Route("/api", h.Routes)
	return r
}

// Routes registers all API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/validate", h.handleValidate)
	r.Post("/normalize", h.handleNormalize)

	r.Get("/exams", h.handleListExams)
	r.Get("/exams/{examID}", h.handleGetExam)
	r.Get("/exams/{examID}/sheet", h.handleSheet)
	r.Get("/exams/{examID}/export.csv", h.handleExamCSV)

	r.Get("/sessions/{sessionID}", h.handleGetSession)

	r.Get("/history", h.handleListHistory)
	r.Get("/history/export.csv", h.handleHistoryCSV)
	r.Get("/history/export.xlsx", h.handleHistoryXLSX)

	r.Get("/analytics", h.handleAnalytics)
	r.Get("/analytics/chart", h.handleAnalyticsChart)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)

		r.Post("/exams", h.handleCreateExam)
		r.Post("/exams/generate", h.handleGenerate)
		r.Post("/exams/import", h.handleImportExams)
		r.Put("/exams/{examID}", h.handleUpdateExam)
		r.Delete("/exams/{examID}", h.handleDeleteExam)
		r.Post("/exams/{examID}/duplicate", h.handleDuplicateExam)

		r.Post("/sessions", h.handleCreateSession)
		r.Post("/sessions/{sessionID}/scan", h.handleScan)
		r.Post("/sessions/{sessionID}/rows/{rowID}/toggle", h.handleToggle)
		r.Put("/sessions/{sessionID}/rows/{rowID}", h.handleSetRow)
		r.Post("/sessions/{sessionID}/save", h.handleSaveSession)

		r.Delete("/history", h.handleClearHistory)
		r.Delete("/history/{recordID}", h.handleDeleteRecord)

		if h.cfg.Debug != nil {
			r.Get("/debug/logs", h.handleDebugLogs)
			r.Delete("/debug/logs", h.handleClearDebugLogs)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a collaborator error onto a status code and logs server-side
// failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, llm.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, llm.ErrUnsupportedFile):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, llm.ErrNoSource):
		status = http.StatusBadRequest
	case errors.Is(err, llm.ErrNoAPIKey):
		status = http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrRefusal), errors.Is(err, llm.ErrEmptyResponse):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

// readUpload reads a multipart file field. It returns nil when the field is
// absent.
func (h *Handler) readUpload(r *http.Request, field string) (*llm.Image, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return h.readImage(file, header)
}

func (h *Handler) readImage(file multipart.File, header *multipart.FileHeader) (*llm.Image, error) {
	if !exam.ValidateFileSize(header.Size, h.cfg.MaxFileMB) {
		return nil, llm.ErrFileTooLarge
	}
	if !exam.ValidateFileType(header.Header.Get("Content-Type"), header.Filename) {
		return nil, llm.ErrUnsupportedFile
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return &llm.Image{Name: header.Filename, MIMEType: mimeType, Data: data}, nil
}

func (h *Handler) maxUploadBytes() int64 {
	// Two images plus form overhead.
	return int64(h.cfg.MaxFileMB)*2<<20 + 1<<20
}
