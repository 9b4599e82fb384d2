package model

import "time"

// QuestionType discriminates scorable and free-response questions.
type QuestionType string

const (
	// QuestionMark is a multiple-choice (possibly multi-select) question.
	QuestionMark QuestionType = "mark"
	// QuestionText is a free-response question that is never machine-scored.
	QuestionText QuestionType = "text"
)

// OptionStyle selects how option bubbles are labeled on a sheet.
type OptionStyle string

const (
	StyleNumber   OptionStyle = "number"
	StyleAlphabet OptionStyle = "alphabet"
	StyleKana     OptionStyle = "kana"
	StyleIroha    OptionStyle = "iroha"
)

// OptionStyles lists every known labeling scheme.
var OptionStyles = []OptionStyle{StyleNumber, StyleAlphabet, StyleKana, StyleIroha}

// Valid reports whether s is one of the known option styles.
func (s OptionStyle) Valid() bool {
	for _, v := range OptionStyles {
		if s == v {
			return true
		}
	}
	return false
}

// BoxHeight is the printable height of a free-response box.
type BoxHeight string

const (
	BoxSmall  BoxHeight = "small"
	BoxMedium BoxHeight = "medium"
	BoxLarge  BoxHeight = "large"
)

// BoxHeights lists every known box height.
var BoxHeights = []BoxHeight{BoxSmall, BoxMedium, BoxLarge}

// Valid reports whether h is one of the known box heights.
func (h BoxHeight) Valid() bool {
	for _, v := range BoxHeights {
		if h == v {
			return true
		}
	}
	return false
}

// Question is one canonical scorable or free-response item.
// Mark-only fields are zero for text questions and vice versa.
type Question struct {
	ID     string       `json:"id"`
	Label  string       `json:"label"`
	Points int          `json:"points"`
	Type   QuestionType `json:"type"`

	OptionsCount   int         `json:"optionsCount,omitempty"`
	OptionStyle    OptionStyle `json:"optionStyle,omitempty"`
	CorrectOptions []int       `json:"correctOptions,omitempty"`

	BoxHeight BoxHeight `json:"boxHeight,omitempty"`
}

// IsMark reports whether the question is machine-scored.
func (q Question) IsMark() bool { return q.Type == QuestionMark }

// ExamConfig is a titled, ordered sequence of questions.
type ExamConfig struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// MarkQuestions returns the machine-scored questions in display order.
func (c ExamConfig) MarkQuestions() []Question {
	var out []Question
	for _, q := range c.Questions {
		if q.IsMark() {
			out = append(out, q)
		}
	}
	return out
}

// QuestionByID returns the question with the given id.
func (c ExamConfig) QuestionByID(id string) (Question, bool) {
	for _, q := range c.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// SavedExam is a persisted exam template.
type SavedExam struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Config    ExamConfig `json:"config"`
}

// GradeRow is one mark question's detection, correction and derived score
// within a grading session.
type GradeRow struct {
	ID           string      `json:"id"`
	Label        string      `json:"label"`
	Filled       []int       `json:"filled"` // nil means nothing was detected
	Correct      bool        `json:"correct"`
	Points       int         `json:"points"`
	MaxPoints    int         `json:"maxPoints"`
	OptionsCount int         `json:"optionsCount"`
	OptionStyle  OptionStyle `json:"optionStyle"`
}

// VisionGradeResult is the detected selection for one question, as returned
// by the AI detection collaborator.
type VisionGradeResult struct {
	ID     string `json:"id"`
	Filled []int  `json:"filled"`
}

// QuestionResult is the per-question breakdown kept in a grading record.
type QuestionResult struct {
	QuestionID string `json:"questionId"`
	Label      string `json:"label"`
	Points     int    `json:"points"`
	MaxPoints  int    `json:"maxPoints"`
	Correct    bool   `json:"correct"`
	Filled     []int  `json:"filled"`
}

// GradingRecord is one completed grading session. Records are never mutated
// after creation.
type GradingRecord struct {
	ID              string           `json:"id"`
	ExamID          string           `json:"examId"`
	ExamTitle       string           `json:"examTitle"`
	StudentName     string           `json:"studentName,omitempty"`
	Score           int              `json:"score"`
	TotalPoints     int              `json:"totalPoints"`
	Percentage      float64          `json:"percentage"`
	GradedAt        time.Time        `json:"gradedAt"`
	QuestionResults []QuestionResult `json:"questionResults"`
}
