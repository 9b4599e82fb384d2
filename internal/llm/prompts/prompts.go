// Package prompts renders the instructions sent to the vision model.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/linkalls/marksheet/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// MaxSourceRunes caps the exam source text forwarded to the model.
const MaxSourceRunes = 20000

var sourceTagRegex = regexp.MustCompile(`(?i)</?\s*source-text\b[^>]*>`)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[string]*template.Template
)

func load() error {
	loadOnce.Do(func() {
		templates = make(map[string]*template.Template)
		for _, name := range []string{"detect_system", "detect_user", "generate_system", "generate_text"} {
			file := "templates/" + name + ".tmpl"
			content, err := templateFS.ReadFile(file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(name).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			templates[name] = tmpl
		}
	})
	return loadErr
}

func execute(name string, data any) (string, error) {
	if err := load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	var buf bytes.Buffer
	if err := templates[name].Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// MarkQuestion is the per-question schema the grader model sees.
type MarkQuestion struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	OptionsCount int    `json:"optionsCount"`
}

// MarkQuestions lists the mark questions of cfg in the shape sent to the model.
func MarkQuestions(cfg model.ExamConfig) []MarkQuestion {
	var out []MarkQuestion
	for _, q := range cfg.MarkQuestions() {
		n := q.OptionsCount
		if n == 0 {
			n = 4
		}
		out = append(out, MarkQuestion{ID: q.ID, Label: q.Label, OptionsCount: n})
	}
	return out
}

// DetectSystem returns the system prompt for bubble detection.
func DetectSystem() (string, error) {
	return execute("detect_system", nil)
}

// DetectUser returns the user prompt listing the questions to detect.
// medium names what is attached, e.g. "image".
func DetectUser(questions []MarkQuestion, medium string) (string, error) {
	schema, err := json.Marshal(questions)
	if err != nil {
		return "", err
	}
	if medium == "" {
		medium = "image"
	}
	return execute("detect_user", struct {
		Medium string
		Schema string
	}{medium, string(schema)})
}

// GenerateSystem returns the system prompt for exam template generation.
func GenerateSystem() (string, error) {
	styles := make([]string, len(model.OptionStyles))
	for i, s := range model.OptionStyles {
		styles[i] = fmt.Sprintf("%q", s)
	}
	heights := make([]string, len(model.BoxHeights))
	for i, h := range model.BoxHeights {
		heights[i] = fmt.Sprintf("%q", h)
	}
	return execute("generate_system", struct {
		MinOptions, MaxOptions int
		Styles, BoxHeights     string
	}{2, 10, strings.Join(styles, " | "), strings.Join(heights, " | ")})
}

// GenerateFromText returns the user prompt wrapping exam source text.
func GenerateFromText(text string) (string, error) {
	return execute("generate_text", struct{ Text string }{sanitizeSource(text)})
}

func sanitizeSource(text string) string {
	text = sourceTagRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if text == "" {
		return "[No source text provided]"
	}

	if utf8.RuneCountInString(text) > MaxSourceRunes {
		runes := []rune(text)
		text = string(runes[:MaxSourceRunes]) + "\n\n[Source truncated due to length]"
	}

	return text
}
