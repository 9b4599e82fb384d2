package handler

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/grading"
	appI18n "github.com/linkalls/marksheet/internal/i18n"
	"github.com/linkalls/marksheet/internal/model"
)

var errSessionBusy = errors.New("answer sheet is already being graded")

// liveSession is one in-progress grading session. mu guards sess; busy is
// guarded by the registry.
type liveSession struct {
	id      string
	examID  string
	created time.Time

	mu   sync.Mutex
	sess *grading.Session
	busy bool
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*liveSession)}
}

func (r *sessionRegistry) add(examID string, sess *grading.Session, now time.Time) *liveSession {
	ls := &liveSession{id: uuid.NewString(), examID: examID, created: now, sess: sess}
	r.mu.Lock()
	r.sessions[ls.id] = ls
	r.mu.Unlock()
	return ls
}

func (r *sessionRegistry) get(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.sessions[id]
	return ls, ok
}

// acquire marks a session busy for a detection call. It fails while another
// detection for the same session is in flight.
func (r *sessionRegistry) acquire(ls *liveSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ls.busy {
		return errSessionBusy
	}
	ls.busy = true
	return nil
}

func (r *sessionRegistry) release(ls *liveSession) {
	r.mu.Lock()
	ls.busy = false
	r.mu.Unlock()
}

func (r *sessionRegistry) isBusy(ls *liveSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ls.busy
}

type sessionView struct {
	ID        string           `json:"id"`
	ExamID    string           `json:"examId,omitempty"`
	Title     string           `json:"title"`
	Rows      []model.GradeRow `json:"rows"`
	Totals    grading.Totals   `json:"totals"`
	Summary   string           `json:"summary"`
	Selected  string           `json:"selected,omitempty"`
	Busy      bool             `json:"busy"`
	CreatedAt time.Time        `json:"createdAt"`
}

// view snapshots ls. The caller must hold ls.mu.
func (h *Handler) view(r *http.Request, ls *liveSession) sessionView {
	t := ls.sess.Totals()
	selected, _ := ls.sess.Selected()
	return sessionView{
		ID:     ls.id,
		ExamID: ls.examID,
		Title:  ls.sess.Config().Title,
		Rows:   ls.sess.Rows(),
		Totals: t,
		Summary: appI18n.Td(r.Context(), "GradeSummary", map[string]any{
			"Earned": t.Earned, "Max": t.MaxPoints, "Percent": t.Percentage,
		}),
		Selected:  selected,
		Busy:      h.sessions.isBusy(ls),
		CreatedAt: ls.created,
	}
}

func (h *Handler) liveSession(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	ls, ok := h.sessions.get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "grading session not found")
		return nil, false
	}
	return ls, true
}

type createSessionRequest struct {
	ExamID   string                    `json:"examId"`
	Config   *model.ExamConfigInput    `json:"config"`
	Detected []model.VisionGradeResult `json:"detected"`
}

// handleCreateSession starts grading a saved exam, or an inline config.
// Detected results may be supplied directly when the sheet was read
// elsewhere.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var (
		cfg  model.ExamConfig
		errs []exam.ValidationError
	)
	switch {
	case req.ExamID != "":
		saved, err := h.exams.Get(req.ExamID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		cfg = saved.Config
		errs = exam.Validate(cfg)
	case req.Config != nil:
		cfg = exam.NormalizeConfig(*req.Config)
		errs = exam.ValidateInput(*req.Config)
	default:
		writeError(w, http.StatusBadRequest, "examId or config is required")
		return
	}
	if !h.validated(w, r, cfg, errs) {
		return
	}

	ls := h.sessions.add(req.ExamID, grading.NewSession(cfg, req.Detected), h.now())
	h.log.Info("grading session started", "session", ls.id, "exam", cfg.Title, "rows", len(cfg.MarkQuestions()))

	ls.mu.Lock()
	defer ls.mu.Unlock()
	writeJSON(w, http.StatusCreated, h.view(r, ls))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	writeJSON(w, http.StatusOK, h.view(r, ls))
}

// handleScan reads the "image" upload, asks the model which bubbles are
// filled and rebuilds every row from the answer. On failure the rows are
// left untouched.
func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(h.maxUploadBytes()); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	img, err := h.readUpload(r, "image")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if img == nil {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}

	if err := h.sessions.acquire(ls); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	defer h.sessions.release(ls)

	ls.mu.Lock()
	cfg := ls.sess.Config()
	ls.mu.Unlock()

	start := h.now()
	detected, err := h.ai.Detect(r.Context(), cfg, *img)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("answer sheet scanned", "session", ls.id, "file", img.Name,
		"results", len(detected), "elapsed", h.now().Sub(start))

	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.sess.Apply(detected)
	ls.sess.ClearSelection()
	writeJSON(w, http.StatusOK, h.view(r, ls))
}

type toggleRequest struct {
	Option int `json:"option"`
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	rowID := chi.URLParam(r, "rowID")
	if _, err := ls.sess.Toggle(rowID, req.Option); err != nil {
		rowError(w, err)
		return
	}
	_ = ls.sess.Select(rowID)
	writeJSON(w, http.StatusOK, h.view(r, ls))
}

type setRowRequest struct {
	Filled []int `json:"filled"`
}

func (h *Handler) handleSetRow(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	var req setRowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	rowID := chi.URLParam(r, "rowID")
	if _, err := ls.sess.Set(rowID, req.Filled); err != nil {
		rowError(w, err)
		return
	}
	_ = ls.sess.Select(rowID)
	writeJSON(w, http.StatusOK, h.view(r, ls))
}

func rowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, grading.ErrUnknownRow):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, grading.ErrOptionOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type saveSessionRequest struct {
	StudentName string `json:"studentName"`
}

// handleSaveSession appends the session's current result to the grading
// history.
func (h *Handler) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	var req saveSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	ls.mu.Lock()
	rec := ls.sess.Record(req.StudentName, h.now())
	ls.mu.Unlock()

	saved, err := h.history.Add(rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("grading record saved", "session", ls.id, "record", saved.ID,
		"score", saved.Score, "total", saved.TotalPoints)
	writeJSON(w, http.StatusCreated, saved)
}
