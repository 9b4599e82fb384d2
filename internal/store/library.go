package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/model"
)

// storedExam is the on-disk shape of a saved exam. Its config is read through
// the normalizer so older entries (e.g. single correctOption) load cleanly.
type storedExam struct {
	ID        string                `json:"id"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
	Config    model.ExamConfigInput `json:"config"`
}

func (e storedExam) saved() model.SavedExam {
	return model.SavedExam{
		ID:        e.ID,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Config:    exam.NormalizeConfig(e.Config),
	}
}

// needsIDs reports whether any stored question lacks an id.
func (e storedExam) needsIDs() bool {
	for _, q := range e.Config.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return true
		}
	}
	return false
}

func toStored(e model.SavedExam) storedExam {
	return storedExam{
		ID:        e.ID,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Config:    exam.ConfigToInput(e.Config),
	}
}

// ExamLibrary is the list of saved exam templates, most recently saved first.
type ExamLibrary struct {
	s   *Store
	now func() time.Time
}

// Exams returns the exam library backed by s.
func (s *Store) Exams() *ExamLibrary {
	return &ExamLibrary{s: s, now: time.Now}
}

func (l *ExamLibrary) load() ([]model.SavedExam, error) {
	stored, err := loadList[storedExam](l.s, keySavedExams)
	if err != nil {
		return nil, err
	}
	out := make([]model.SavedExam, len(stored))
	migrated := false
	for i, e := range stored {
		out[i] = e.saved()
		migrated = migrated || e.needsIDs()
	}
	// Assigned question ids must survive the next load.
	if migrated {
		if err := l.persist(out); err != nil {
			return nil, fmt.Errorf("migrate saved exams: %w", err)
		}
		l.s.log.Info("assigned ids to stored questions")
	}
	return out, nil
}

func (l *ExamLibrary) persist(list []model.SavedExam) error {
	stored := make([]storedExam, len(list))
	for i, e := range list {
		stored[i] = toStored(e)
	}
	return saveList(l.s, keySavedExams, stored)
}

// List returns every saved exam.
func (l *ExamLibrary) List() ([]model.SavedExam, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.load()
}

// Get returns the saved exam with id.
func (l *ExamLibrary) Get(id string) (model.SavedExam, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	list, err := l.load()
	if err != nil {
		return model.SavedExam{}, err
	}
	i := slices.IndexFunc(list, func(e model.SavedExam) bool { return e.ID == id })
	if i < 0 {
		return model.SavedExam{}, fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	return list[i], nil
}

// Save stores cfg. An empty id creates a new entry; an existing id is updated
// and moved to the front. A blank title is replaced with the default title.
func (l *ExamLibrary) Save(id string, cfg model.ExamConfig) (model.SavedExam, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	list, err := l.load()
	if err != nil {
		return model.SavedExam{}, err
	}

	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.Title == "" {
		cfg.Title = exam.DefaultTitle
	}
	now := l.now().UTC()

	var entry model.SavedExam
	if id == "" {
		entry = model.SavedExam{ID: exam.NewID(""), CreatedAt: now, UpdatedAt: now, Config: cfg}
	} else {
		i := slices.IndexFunc(list, func(e model.SavedExam) bool { return e.ID == id })
		if i < 0 {
			return model.SavedExam{}, fmt.Errorf("exam %q: %w", id, ErrNotFound)
		}
		entry = list[i]
		entry.UpdatedAt = now
		entry.Config = cfg
		list = slices.Delete(list, i, i+1)
	}

	if err := l.persist(append([]model.SavedExam{entry}, list...)); err != nil {
		return model.SavedExam{}, fmt.Errorf("save exam: %w", err)
	}
	return entry, nil
}

// Delete removes the saved exam with id.
func (l *ExamLibrary) Delete(id string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	list, err := l.load()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(list, func(e model.SavedExam) bool { return e.ID == id })
	if i < 0 {
		return fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	return l.persist(slices.Delete(list, i, i+1))
}

// Duplicate copies the saved exam with id under a new id and a " (Copy)"
// title, placing the copy first.
func (l *ExamLibrary) Duplicate(id string) (model.SavedExam, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	list, err := l.load()
	if err != nil {
		return model.SavedExam{}, err
	}
	i := slices.IndexFunc(list, func(e model.SavedExam) bool { return e.ID == id })
	if i < 0 {
		return model.SavedExam{}, fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}

	now := l.now().UTC()
	cfg := list[i].Config
	cfg.Title += " (Copy)"
	cfg.Questions = slices.Clone(cfg.Questions)
	entry := model.SavedExam{ID: exam.NewID(""), CreatedAt: now, UpdatedAt: now, Config: cfg}

	if err := l.persist(append([]model.SavedExam{entry}, list...)); err != nil {
		return model.SavedExam{}, fmt.Errorf("duplicate exam: %w", err)
	}
	return entry, nil
}
