package grading

import (
	"errors"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/linkalls/marksheet/internal/analytics"
	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/model"
)

var (
	// ErrUnknownRow is returned when a row id does not belong to the session.
	ErrUnknownRow = errors.New("unknown grade row")
	// ErrOptionOutOfRange is returned for option indices outside the question's options.
	ErrOptionOutOfRange = errors.New("option index out of range")
)

// Totals is the score summary of a session.
type Totals struct {
	Earned     int `json:"earned"`
	MaxPoints  int `json:"maxPoints"`
	Percentage int `json:"percentage"`
}

// Session holds the grade rows of one answer sheet. It is not safe for
// concurrent use.
type Session struct {
	config   model.ExamConfig
	rows     []model.GradeRow
	index    map[string]int
	answers  map[string][]int
	selected string
}

// NewSession builds one row per mark question of cfg, in exam order, and
// scores it against the detected selections. Text questions get no row. Only
// the first question with a given id gets a row; exam.Validate rejects
// configs with duplicate ids.
func NewSession(cfg model.ExamConfig, detected []model.VisionGradeResult) *Session {
	s := &Session{
		config:  cfg,
		index:   make(map[string]int),
		answers: make(map[string][]int),
	}
	for _, q := range cfg.MarkQuestions() {
		if _, dup := s.index[q.ID]; dup {
			continue
		}
		s.index[q.ID] = len(s.rows)
		s.answers[q.ID] = q.CorrectOptions
		s.rows = append(s.rows, model.GradeRow{
			ID:           q.ID,
			Label:        q.Label,
			MaxPoints:    q.Points,
			OptionsCount: q.OptionsCount,
			OptionStyle:  q.OptionStyle,
		})
	}
	s.Apply(detected)
	return s
}

// Apply replaces every row's selection with a fresh detection. Rows without
// a detected result get a nil selection.
func (s *Session) Apply(detected []model.VisionGradeResult) {
	byID := make(map[string][]int)
	for _, d := range SanitizeDetections(s.config, detected) {
		byID[d.ID] = d.Filled
	}
	for i := range s.rows {
		s.rows[i].Filled = byID[s.rows[i].ID]
		s.rescore(i)
	}
}

// Config returns the exam being graded.
func (s *Session) Config() model.ExamConfig { return s.config }

// Rows returns a copy of the current rows.
func (s *Session) Rows() []model.GradeRow {
	out := make([]model.GradeRow, len(s.rows))
	for i, r := range s.rows {
		r.Filled = cloneSelection(r.Filled)
		out[i] = r
	}
	return out
}

// Row returns a copy of a single row.
func (s *Session) Row(id string) (model.GradeRow, error) {
	i, ok := s.index[id]
	if !ok {
		return model.GradeRow{}, ErrUnknownRow
	}
	r := s.rows[i]
	r.Filled = cloneSelection(r.Filled)
	return r, nil
}

// Toggle adds option to the row's selection or removes it if present.
// Removing the last option leaves an empty selection, not nil.
func (s *Session) Toggle(id string, option int) (model.GradeRow, error) {
	i, ok := s.index[id]
	if !ok {
		return model.GradeRow{}, ErrUnknownRow
	}
	if option < 0 || option >= s.rows[i].OptionsCount {
		return model.GradeRow{}, ErrOptionOutOfRange
	}

	filled := cloneSelection(s.rows[i].Filled)
	if pos := slices.Index(filled, option); pos >= 0 {
		filled = slices.Delete(filled, pos, pos+1)
	} else {
		filled = append(filled, option)
		slices.Sort(filled)
	}
	s.rows[i].Filled = filled
	s.rescore(i)
	return s.Row(id)
}

// Set replaces the row's selection. A nil selection marks the row as not
// detected. Out-of-range indices reject the whole update.
func (s *Session) Set(id string, filled []int) (model.GradeRow, error) {
	i, ok := s.index[id]
	if !ok {
		return model.GradeRow{}, ErrUnknownRow
	}
	if filled != nil {
		for _, idx := range filled {
			if idx < 0 || idx >= s.rows[i].OptionsCount {
				return model.GradeRow{}, ErrOptionOutOfRange
			}
		}
		filled = exam.CleanIndices(filled, s.rows[i].OptionsCount)
	}
	s.rows[i].Filled = filled
	s.rescore(i)
	return s.Row(id)
}

// Select marks a row as the one under interactive correction.
func (s *Session) Select(id string) error {
	if _, ok := s.index[id]; !ok {
		return ErrUnknownRow
	}
	s.selected = id
	return nil
}

// Selected returns the row under correction, if any.
func (s *Session) Selected() (string, bool) {
	return s.selected, s.selected != ""
}

// ClearSelection ends interactive correction.
func (s *Session) ClearSelection() { s.selected = "" }

// Totals sums the current rows. Percentage is rounded to the nearest integer
// and is 0 when the exam has no mark points.
func (s *Session) Totals() Totals {
	var t Totals
	for _, r := range s.rows {
		t.Earned += r.Points
		t.MaxPoints += r.MaxPoints
	}
	if t.MaxPoints > 0 {
		t.Percentage = int(math.Round(100 * float64(t.Earned) / float64(t.MaxPoints)))
	}
	return t
}

// StudentResult converts the session into analytics input.
func (s *Session) StudentResult() analytics.StudentResult {
	t := s.Totals()
	res := analytics.StudentResult{Score: float64(t.Earned), TotalPoints: float64(t.MaxPoints)}
	for _, r := range s.rows {
		res.QuestionResults = append(res.QuestionResults, analytics.QuestionOutcome{
			QuestionID: r.ID,
			Correct:    r.Correct,
		})
	}
	return res
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// ExamKey derives the exam identity stored on grading records.
func ExamKey(title string) string {
	return "exam_" + nonAlnum.ReplaceAllString(title, "_")
}

// Record snapshots the session as a grading history record.
func (s *Session) Record(studentName string, now time.Time) model.GradingRecord {
	t := s.Totals()
	rec := model.GradingRecord{
		ID:          exam.NewID(""),
		ExamID:      ExamKey(s.config.Title),
		ExamTitle:   s.config.Title,
		StudentName: exam.SanitizeInput(studentName),
		Score:       t.Earned,
		TotalPoints: t.MaxPoints,
		GradedAt:    now.UTC(),
	}
	if t.MaxPoints > 0 {
		rec.Percentage = float64(t.Earned) / float64(t.MaxPoints) * 100
	}
	for _, r := range s.rows {
		rec.QuestionResults = append(rec.QuestionResults, model.QuestionResult{
			QuestionID: r.ID,
			Label:      r.Label,
			Points:     r.Points,
			MaxPoints:  r.MaxPoints,
			Correct:    r.Correct,
			Filled:     cloneSelection(r.Filled),
		})
	}
	return rec
}

func (s *Session) rescore(i int) {
	r := &s.rows[i]
	r.Correct = Equivalent(r.Filled, s.answers[r.ID])
	r.Points = 0
	if r.Correct {
		r.Points = r.MaxPoints
	}
}

// SanitizeDetections keeps only results for mark questions of cfg, drops
// out-of-range indices, de-duplicates and sorts each selection. The first
// result wins when an id repeats. A nil selection stays nil.
func SanitizeDetections(cfg model.ExamConfig, detected []model.VisionGradeResult) []model.VisionGradeResult {
	counts := make(map[string]int)
	for _, q := range cfg.MarkQuestions() {
		counts[q.ID] = q.OptionsCount
	}
	seen := make(map[string]bool)
	var out []model.VisionGradeResult
	for _, d := range detected {
		n, ok := counts[d.ID]
		if !ok || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		res := model.VisionGradeResult{ID: d.ID}
		if d.Filled != nil {
			res.Filled = exam.CleanIndices(d.Filled, n)
		}
		out = append(out, res)
	}
	return out
}

func cloneSelection(in []int) []int {
	if in == nil {
		return nil
	}
	return append([]int{}, in...)
}
