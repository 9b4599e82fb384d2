package store

import (
	"fmt"
	"slices"

	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/model"
)

// GradingHistory is the list of completed grading records, newest first.
type GradingHistory struct {
	s *Store
}

// History returns the grading history backed by s.
func (s *Store) History() *GradingHistory {
	return &GradingHistory{s: s}
}

// List returns every record.
func (h *GradingHistory) List() ([]model.GradingRecord, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return loadList[model.GradingRecord](h.s, keyGradingHistory)
}

// Add stores rec at the front of the history. An empty id is filled in.
func (h *GradingHistory) Add(rec model.GradingRecord) (model.GradingRecord, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	list, err := loadList[model.GradingRecord](h.s, keyGradingHistory)
	if err != nil {
		return model.GradingRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = exam.NewID("")
	}
	if err := saveList(h.s, keyGradingHistory, append([]model.GradingRecord{rec}, list...)); err != nil {
		return model.GradingRecord{}, fmt.Errorf("add grading record: %w", err)
	}
	return rec, nil
}

// Delete removes the record with id.
func (h *GradingHistory) Delete(id string) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	list, err := loadList[model.GradingRecord](h.s, keyGradingHistory)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(list, func(r model.GradingRecord) bool { return r.ID == id })
	if i < 0 {
		return fmt.Errorf("record %q: %w", id, ErrNotFound)
	}
	return saveList(h.s, keyGradingHistory, slices.Delete(list, i, i+1))
}

// Clear removes every record.
func (h *GradingHistory) Clear() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return saveList(h.s, keyGradingHistory, []model.GradingRecord{})
}

// ForExam returns the records whose exam title equals title exactly.
func (h *GradingHistory) ForExam(title string) ([]model.GradingRecord, error) {
	list, err := h.List()
	if err != nil {
		return nil, err
	}
	out := []model.GradingRecord{}
	for _, r := range list {
		if r.ExamTitle == title {
			out = append(out, r)
		}
	}
	return out, nil
}
