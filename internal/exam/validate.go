package exam

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/linkalls/marksheet/internal/model"
)

// Limits enforced by Validate.
const (
	MaxTitleLength    = 100
	MaxQuestions      = 100
	MaxLabelLength    = 50
	MaxPoints         = 1000
	MaxOptionsCount   = 10
	DefaultMaxFileMB  = 20
	minAPIKeyLength   = 40
	minProjectKeyLen  = 56
	projectKeyPrefix  = "sk-proj-"
	standardKeyPrefix = "sk-"
)

// ValidationError describes one structural problem in an exam config.
// Code is a message id usable for translation; Data holds its template values.
type ValidationError struct {
	Field   string         `json:"field"`
	Code    string         `json:"code"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message"`
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Message }

// Validate checks an exam config before it is saved or exported. All checks
// run; an empty result means the config is valid.
func Validate(cfg model.ExamConfig) []ValidationError {
	var errs []ValidationError

	title := strings.TrimSpace(cfg.Title)
	switch {
	case title == "":
		errs = append(errs, ValidationError{
			Field: "title", Code: "TitleRequired",
			Message: "Exam title is required",
		})
	case utf8.RuneCountInString(cfg.Title) > MaxTitleLength:
		errs = append(errs, ValidationError{
			Field: "title", Code: "TitleTooLong",
			Data:    map[string]any{"Max": MaxTitleLength},
			Message: fmt.Sprintf("Exam title must be at most %d characters", MaxTitleLength),
		})
	}

	switch n := len(cfg.Questions); {
	case n == 0:
		errs = append(errs, ValidationError{
			Field: "questions", Code: "QuestionsRequired",
			Message: "At least one question is required",
		})
	case n > MaxQuestions:
		errs = append(errs, ValidationError{
			Field: "questions", Code: "TooManyQuestions",
			Data:    map[string]any{"Max": MaxQuestions},
			Message: fmt.Sprintf("Maximum %d questions allowed", MaxQuestions),
		})
	}

	seen := make(map[string]int, len(cfg.Questions))
	for i, q := range cfg.Questions {
		errs = append(errs, ValidateQuestion(q, i)...)
		id := strings.TrimSpace(q.ID)
		if id == "" {
			continue
		}
		if first, dup := seen[id]; dup {
			errs = append(errs, ValidationError{
				Field: fmt.Sprintf("questions[%d].id", i), Code: "IDDuplicate",
				Data:    map[string]any{"N": i + 1, "First": first + 1},
				Message: fmt.Sprintf("Question %d: ID duplicates question %d", i+1, first+1),
			})
			continue
		}
		seen[id] = i
	}
	return errs
}

// ValidateInput checks a config as submitted, before normalization. Absent
// fields take their defaults, but a blank title, an option count below the
// minimum and answer indices outside the option range are checked against
// the submitted values, which the normalizer would otherwise repair or drop.
func ValidateInput(in model.ExamConfigInput) []ValidationError {
	cfg := NormalizeConfig(in)
	cfg.Title = in.Title
	for i, raw := range in.Questions {
		q := &cfg.Questions[i]
		if q.Type != model.QuestionMark {
			continue
		}
		if raw.OptionsCount != nil {
			q.OptionsCount = *raw.OptionsCount
		}
		switch {
		case raw.CorrectOptions != nil:
			q.CorrectOptions = raw.CorrectOptions
		case raw.CorrectOption != nil:
			q.CorrectOptions = []int{*raw.CorrectOption}
		}
	}
	return Validate(cfg)
}

// ValidateQuestion checks a single question at the given position.
func ValidateQuestion(q model.Question, index int) []ValidationError {
	var errs []ValidationError
	prefix := fmt.Sprintf("questions[%d]", index)
	num := index + 1
	add := func(field, code, msg string, data map[string]any) {
		if data == nil {
			data = map[string]any{}
		}
		data["N"] = num
		errs = append(errs, ValidationError{
			Field:   prefix + "." + field,
			Code:    code,
			Data:    data,
			Message: fmt.Sprintf("Question %d: %s", num, msg),
		})
	}

	if strings.TrimSpace(q.ID) == "" {
		add("id", "IDRequired", "ID is required", nil)
	}

	switch {
	case strings.TrimSpace(q.Label) == "":
		add("label", "LabelRequired", "Label is required", nil)
	case utf8.RuneCountInString(q.Label) > MaxLabelLength:
		add("label", "LabelTooLong",
			fmt.Sprintf("Label must be at most %d characters", MaxLabelLength),
			map[string]any{"Max": MaxLabelLength})
	}

	switch {
	case q.Points < 0:
		add("points", "PointsNegative", "Points cannot be negative", nil)
	case q.Points > MaxPoints:
		add("points", "PointsTooHigh",
			fmt.Sprintf("Points value is too high (max %d)", MaxPoints),
			map[string]any{"Max": MaxPoints})
	}

	switch q.Type {
	case model.QuestionMark:
		switch {
		case q.OptionsCount < minOptionsCount:
			add("optionsCount", "OptionsTooFew",
				fmt.Sprintf("At least %d options required for multiple choice", minOptionsCount),
				map[string]any{"Min": minOptionsCount})
		case q.OptionsCount > MaxOptionsCount:
			add("optionsCount", "OptionsTooMany",
				fmt.Sprintf("Maximum %d options allowed", MaxOptionsCount),
				map[string]any{"Max": MaxOptionsCount})
		}
		if q.OptionStyle == "" {
			add("optionStyle", "OptionStyleRequired", "Option style is required", nil)
		}
		for _, idx := range q.CorrectOptions {
			if idx < 0 || idx >= q.OptionsCount {
				add("correctOptions", "CorrectOptionOutOfRange",
					fmt.Sprintf("Correct option index %d is out of range", idx),
					map[string]any{"Index": idx})
			}
		}
	case model.QuestionText:
		if q.BoxHeight == "" {
			add("boxHeight", "BoxHeightRequired", "Box height is required for text questions", nil)
		}
	default:
		add("type", "TypeInvalid", fmt.Sprintf("Unknown question type %q", q.Type),
			map[string]any{"Type": string(q.Type)})
	}

	return errs
}

// FormatErrors joins validation errors into one human-readable message.
func FormatErrors(errs []ValidationError) string {
	switch len(errs) {
	case 0:
		return ""
	case 1:
		return errs[0].Message
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d validation errors:", len(errs))
	for i, e := range errs {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, e.Message)
	}
	return sb.String()
}

// ValidateAPIKey reports whether key looks like an OpenAI API key.
func ValidateAPIKey(key string) bool {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, standardKeyPrefix) {
		return false
	}
	if strings.HasPrefix(key, projectKeyPrefix) {
		return len(key) >= minProjectKeyLen
	}
	return len(key) >= minAPIKeyLength
}

// ValidateFileSize reports whether size fits within maxMB megabytes.
func ValidateFileSize(size int64, maxMB int) bool {
	if maxMB <= 0 {
		maxMB = DefaultMaxFileMB
	}
	return size <= int64(maxMB)*1024*1024
}

var allowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"application/pdf": true,
}

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
}

// ValidateFileType accepts JPEG, PNG and PDF uploads by MIME type, falling
// back to the file extension.
func ValidateFileType(mimeType, name string) bool {
	if allowedMIMETypes[strings.ToLower(mimeType)] {
		return true
	}
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

var scriptProtocol = regexp.MustCompile(`(?i)javascript:`)

// SanitizeInput strips angle brackets and javascript: URLs from free text.
func SanitizeInput(s string) string {
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	s = scriptProtocol.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
