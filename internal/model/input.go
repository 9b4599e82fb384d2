package model

// QuestionInput is the raw question shape accepted from stored templates,
// imported JSON files and AI output. Every field is optional; the question
// normalizer is the only reader.
type QuestionInput struct {
	ID     string   `json:"id,omitempty"`
	Label  string   `json:"label,omitempty"`
	Points *float64 `json:"points,omitempty"`
	Type   string   `json:"type,omitempty"`

	OptionsCount   *int   `json:"optionsCount,omitempty"`
	OptionStyle    string `json:"optionStyle,omitempty"`
	CorrectOptions []int  `json:"correctOptions,omitempty"`
	// CorrectOption is the legacy single-answer field.
	CorrectOption *int `json:"correctOption,omitempty"`

	BoxHeight string `json:"boxHeight,omitempty"`
}

// ExamConfigInput is the raw form of an ExamConfig.
type ExamConfigInput struct {
	Title     string          `json:"title"`
	Questions []QuestionInput `json:"questions"`
}
