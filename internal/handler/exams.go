package handler

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/export"
	appI18n "github.com/linkalls/marksheet/internal/i18n"
	"github.com/linkalls/marksheet/internal/llm"
	"github.com/linkalls/marksheet/internal/model"
)

type validationResponse struct {
	Valid   bool                   `json:"valid"`
	Summary string                 `json:"summary,omitempty"`
	Errors  []exam.ValidationError `json:"errors"`
	Config  model.ExamConfig       `json:"config"`
}

// decodeConfig reads a possibly partial exam config and normalizes it. The
// returned errors come from checking the config as submitted.
func decodeConfig(r *http.Request) (model.ExamConfig, []exam.ValidationError, error) {
	var in model.ExamConfigInput
	if err := decodeJSON(r, &in); err != nil {
		return model.ExamConfig{}, nil, err
	}
	return exam.NormalizeConfig(in), exam.ValidateInput(in), nil
}

// validated writes a 422 response listing errs unless it is empty.
func (h *Handler) validated(w http.ResponseWriter, r *http.Request, cfg model.ExamConfig, errs []exam.ValidationError) bool {
	if len(errs) == 0 {
		return true
	}
	writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
		Summary: appI18n.FormatValidationErrors(r.Context(), errs),
		Errors:  appI18n.ValidationErrors(r.Context(), errs),
		Config:  cfg,
	})
	return false
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	cfg, errs, err := decodeConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	resp := validationResponse{
		Valid:  len(errs) == 0,
		Errors: appI18n.ValidationErrors(r.Context(), errs),
		Config: cfg,
	}
	if resp.Valid {
		resp.Summary = appI18n.Td(r.Context(), "ExamValid", map[string]any{"Title": cfg.Title})
	} else {
		resp.Summary = appI18n.FormatValidationErrors(r.Context(), errs)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleNormalize(w http.ResponseWriter, r *http.Request) {
	cfg, _, err := decodeConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	list, err := h.exams.List()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	saved, err := h.exams.Get(chi.URLParam(r, "examID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	h.saveExam(w, r, "", http.StatusCreated)
}

func (h *Handler) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	h.saveExam(w, r, chi.URLParam(r, "examID"), http.StatusOK)
}

func (h *Handler) saveExam(w http.ResponseWriter, r *http.Request, id string, status int) {
	cfg, errs, err := decodeConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	cfg.Title = exam.SanitizeInput(cfg.Title)
	if !h.validated(w, r, cfg, errs) {
		return
	}
	saved, err := h.exams.Save(id, cfg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("exam saved", "id", saved.ID, "title", saved.Config.Title, "questions", len(saved.Config.Questions))
	writeJSON(w, status, saved)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	if err := h.exams.Delete(chi.URLParam(r, "examID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDuplicateExam(w http.ResponseWriter, r *http.Request) {
	dup, err := h.exams.Duplicate(chi.URLParam(r, "examID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

func (h *Handler) handleSheet(w http.ResponseWriter, r *http.Request) {
	saved, err := h.exams.Get(chi.URLParam(r, "examID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Sheet(saved.Config, appI18n.T(r.Context(), "NameLabel")).Render(r.Context(), &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleExamCSV(w http.ResponseWriter, r *http.Request) {
	saved, err := h.exams.Get(chi.URLParam(r, "examID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteExamCSV(&buf, saved.Config); err != nil {
		h.fail(w, r, err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", fileStem(saved.Config.Title)+".csv")
	_, _ = w.Write(buf.Bytes())
}

// handleGenerate drafts an exam from a multipart upload with a "text" field
// or a "source" image, plus an optional "answer_key" image. The draft is
// returned unsaved along with its validation errors.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes()); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	req := llm.GenerateRequest{Text: r.FormValue("text")}
	var err error
	if req.Source, err = h.readUpload(r, "source"); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.AnswerKey, err = h.readUpload(r, "answer_key"); err != nil {
		h.fail(w, r, err)
		return
	}

	cfg, err := h.ai.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errs := exam.Validate(cfg)
	writeJSON(w, http.StatusOK, validationResponse{
		Valid:  len(errs) == 0,
		Errors: appI18n.ValidationErrors(r.Context(), errs),
		Config: cfg,
	})
}

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
}

// fileStem turns an exam title into a safe download file name.
func fileStem(title string) string {
	stem := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if stem == "" {
		return "exam"
	}
	return stem
}
