package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/model"
)

func (h *Handler) handleDebugLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Debug.Entries())
}

func (h *Handler) handleClearDebugLogs(w http.ResponseWriter, r *http.Request) {
	h.cfg.Debug.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type importResult struct {
	Imported []model.SavedExam `json:"imported"`
	Rejected []importRejection `json:"rejected"`
}

type importRejection struct {
	Index  int                    `json:"index"`
	Title  string                 `json:"title"`
	Errors []exam.ValidationError `json:"errors"`
}

// handleImportExams saves every valid exam config from an uploaded JSON file
// holding either one config or an array of them. Invalid configs are
// reported and skipped.
func (h *Handler) handleImportExams(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes()); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("exams_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inputs, err := parseExamFile(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res := importResult{Imported: []model.SavedExam{}, Rejected: []importRejection{}}
	for i, in := range inputs {
		cfg := exam.NormalizeConfig(in)
		if errs := exam.ValidateInput(in); len(errs) > 0 {
			res.Rejected = append(res.Rejected, importRejection{Index: i, Title: cfg.Title, Errors: errs})
			continue
		}
		saved, err := h.exams.Save("", cfg)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		res.Imported = append(res.Imported, saved)
	}

	h.log.Info("imported exams", "filename", header.Filename,
		"imported", len(res.Imported), "rejected", len(res.Rejected))
	writeJSON(w, http.StatusOK, res)
}

// parseExamFile accepts a single exam config object or an array of them.
func parseExamFile(data []byte) ([]model.ExamConfigInput, error) {
	var list []model.ExamConfigInput
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var one model.ExamConfigInput
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []model.ExamConfigInput{one}, nil
}
