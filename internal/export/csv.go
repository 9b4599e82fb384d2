// Package export renders grading history and exam templates for download:
// CSV and XLSX tables, a printable answer sheet and the analytics chart.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/linkalls/marksheet/internal/model"
)

// ErrNoResults is returned when there is nothing to export.
var ErrNoResults = errors.New("no results to export")

// TimeLayout formats grading timestamps in exports.
const TimeLayout = "2006-01-02 15:04:05"

var gradingHeaders = []string{"Student", "Exam", "Score", "Total Points", "Percentage", "Graded At", "Question Details"}

var examHeaders = []string{"Question #", "Label", "Type", "Points", "Options Count", "Option Style", "Correct Options", "Box Height"}

// EscapeCSV quotes a value when it contains a quote, comma or line break, or
// starts with a character spreadsheets treat as a formula.
func EscapeCSV(value string) string {
	needs := strings.ContainsAny(value, "\",\n\r") ||
		strings.HasPrefix(value, "=") || strings.HasPrefix(value, "+") ||
		strings.HasPrefix(value, "-") || strings.HasPrefix(value, "@")
	if !needs {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func csvLine(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = EscapeCSV(v)
	}
	return strings.Join(escaped, ",")
}

// StudentName is the display name of a record's student.
func StudentName(rec model.GradingRecord) string {
	if rec.StudentName == "" {
		return "Unknown"
	}
	return rec.StudentName
}

// QuestionDetails summarizes a record as "label: ✓; label: ✗".
func QuestionDetails(rec model.GradingRecord) string {
	parts := make([]string, len(rec.QuestionResults))
	for i, q := range rec.QuestionResults {
		mark := "✗"
		if q.Correct {
			mark = "✓"
		}
		parts[i] = q.Label + ": " + mark
	}
	return strings.Join(parts, "; ")
}

// WriteGradingCSV writes one line per record. Timestamps are shown in loc.
func WriteGradingCSV(w io.Writer, records []model.GradingRecord, loc *time.Location) error {
	if len(records) == 0 {
		return ErrNoResults
	}
	if loc == nil {
		loc = time.Local
	}
	lines := []string{csvLine(gradingHeaders)}
	for _, rec := range records {
		lines = append(lines, csvLine([]string{
			StudentName(rec),
			rec.ExamTitle,
			strconv.Itoa(rec.Score),
			strconv.Itoa(rec.TotalPoints),
			fmt.Sprintf("%.1f%%", rec.Percentage),
			rec.GradedAt.In(loc).Format(TimeLayout),
			QuestionDetails(rec),
		}))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// WriteExamCSV writes an exam template for sharing, preceded by a title line.
func WriteExamCSV(w io.Writer, cfg model.ExamConfig) error {
	lines := []string{EscapeCSV("Exam: " + cfg.Title), "", csvLine(examHeaders)}
	for i, q := range cfg.Questions {
		var count, correct string
		if q.IsMark() {
			count = strconv.Itoa(q.OptionsCount)
			idx := make([]string, len(q.CorrectOptions))
			for j, c := range q.CorrectOptions {
				idx[j] = strconv.Itoa(c)
			}
			correct = strings.Join(idx, ", ")
		}
		lines = append(lines, csvLine([]string{
			strconv.Itoa(i + 1),
			q.Label,
			string(q.Type),
			strconv.Itoa(q.Points),
			count,
			string(q.OptionStyle),
			correct,
			string(q.BoxHeight),
		}))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}
