package exam

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/linkalls/marksheet/internal/model"
)

const (
	// DefaultTitle replaces a blank exam title.
	DefaultTitle = "Untitled Exam"

	defaultOptionsCount = 4
	minOptionsCount     = 2
)

// NewID returns an identifier built from a UUIDv7, which embeds a
// millisecond timestamp followed by random bits.
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + id.String()
}

// NormalizeQuestion turns a raw question into its canonical form. It never
// fails and NormalizeQuestion(ToInput(NormalizeQuestion(in, i)), i) returns
// the same question.
func NormalizeQuestion(in model.QuestionInput, position int) model.Question {
	q := model.Question{
		ID:     strings.TrimSpace(in.ID),
		Label:  strings.TrimSpace(in.Label),
		Points: normalizePoints(in.Points),
	}
	if q.ID == "" {
		q.ID = NewID("q_")
	}
	if q.Label == "" {
		q.Label = "Q" + strconv.Itoa(position+1)
	}

	if model.QuestionType(in.Type) == model.QuestionText {
		q.Type = model.QuestionText
		q.BoxHeight = model.BoxHeight(in.BoxHeight)
		if !q.BoxHeight.Valid() {
			q.BoxHeight = model.BoxMedium
		}
		return q
	}

	q.Type = model.QuestionMark
	q.OptionsCount = defaultOptionsCount
	if in.OptionsCount != nil {
		q.OptionsCount = max(minOptionsCount, *in.OptionsCount)
	}
	q.OptionStyle = model.OptionStyle(in.OptionStyle)
	if !q.OptionStyle.Valid() {
		q.OptionStyle = model.StyleAlphabet
	}

	correct := in.CorrectOptions
	if correct == nil && in.CorrectOption != nil {
		correct = []int{*in.CorrectOption}
	}
	q.CorrectOptions = CleanIndices(correct, q.OptionsCount)
	return q
}

// CleanIndices drops indices outside [0, optionsCount), removes duplicates
// and sorts ascending. The result is never nil.
func CleanIndices(indices []int, optionsCount int) []int {
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= optionsCount {
			continue
		}
		out = append(out, idx)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizePoints(p *float64) int {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0
	}
	return int(math.Trunc(*p))
}

// NormalizeConfig normalizes every question of a raw exam config.
func NormalizeConfig(in model.ExamConfigInput) model.ExamConfig {
	cfg := model.ExamConfig{
		Title:     strings.TrimSpace(in.Title),
		Questions: make([]model.Question, 0, len(in.Questions)),
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	for i, q := range in.Questions {
		cfg.Questions = append(cfg.Questions, NormalizeQuestion(q, i))
	}
	return cfg
}

// ToInput converts a question back into the raw input shape.
func ToInput(q model.Question) model.QuestionInput {
	points := float64(q.Points)
	in := model.QuestionInput{
		ID:     q.ID,
		Label:  q.Label,
		Points: &points,
		Type:   string(q.Type),
	}
	if q.Type == model.QuestionText {
		in.BoxHeight = string(q.BoxHeight)
		return in
	}
	count := q.OptionsCount
	in.OptionsCount = &count
	in.OptionStyle = string(q.OptionStyle)
	in.CorrectOptions = append([]int{}, q.CorrectOptions...)
	return in
}

// ConfigToInput converts a config back into the raw input shape.
func ConfigToInput(cfg model.ExamConfig) model.ExamConfigInput {
	in := model.ExamConfigInput{Title: cfg.Title}
	for _, q := range cfg.Questions {
		in.Questions = append(in.Questions, ToInput(q))
	}
	return in
}
