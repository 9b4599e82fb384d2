package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linkalls/marksheet/internal/analytics"
	"github.com/linkalls/marksheet/internal/export"
	"github.com/linkalls/marksheet/internal/model"
)

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.records(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// records returns the grading history, narrowed to one exam title when the
// "exam" query parameter is set.
func (h *Handler) records(r *http.Request) ([]model.GradingRecord, error) {
	if title := r.URL.Query().Get("exam"); title != "" {
		return h.history.ForExam(title)
	}
	return h.history.List()
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.history.Delete(chi.URLParam(r, "recordID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.history.Clear(); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("grading history cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	records, err := h.records(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteGradingCSV(&buf, records, h.cfg.Location); err != nil {
		h.exportError(w, r, err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", "grading-results.csv")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleHistoryXLSX(w http.ResponseWriter, r *http.Request) {
	records, err := h.records(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteGradingXLSX(&buf, records, h.cfg.Location); err != nil {
		h.exportError(w, r, err)
		return
	}
	attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "grading-results.xlsx")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) exportError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, export.ErrNoResults) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.fail(w, r, err)
}

// examAnalytics computes analytics for the exam named by the "exam" query
// parameter. The exam's questions come from the most recently updated saved
// exam with that title; without one, question rows are derived from the
// stored records.
func (h *Handler) examAnalytics(w http.ResponseWriter, r *http.Request) (analytics.ExamAnalytics, bool) {
	title := r.URL.Query().Get("exam")
	if title == "" {
		writeError(w, http.StatusBadRequest, "exam query parameter is required")
		return analytics.ExamAnalytics{}, false
	}
	records, err := h.history.ForExam(title)
	if err != nil {
		h.fail(w, r, err)
		return analytics.ExamAnalytics{}, false
	}
	cfg, err := h.analyticsConfig(title, records)
	if err != nil {
		h.fail(w, r, err)
		return analytics.ExamAnalytics{}, false
	}
	return analytics.Compute(cfg, analytics.FromRecords(records)), true
}

func (h *Handler) analyticsConfig(title string, records []model.GradingRecord) (model.ExamConfig, error) {
	saved, err := h.exams.List()
	if err != nil {
		return model.ExamConfig{}, err
	}
	for _, s := range saved {
		if s.Config.Title == title {
			return s.Config, nil
		}
	}
	return analytics.ConfigFromRecords(title, records), nil
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, ok := h.examAnalytics(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleAnalyticsChart(w http.ResponseWriter, r *http.Request) {
	a, ok := h.examAnalytics(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.RenderAnalytics(&buf, a); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
