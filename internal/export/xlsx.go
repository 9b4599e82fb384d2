package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/linkalls/marksheet/internal/analytics"
	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/model"
)

const (
	resultsSheet = "Results"
	detailsSheet = "Details"
)

var detailHeaders = []string{"Student", "Exam", "Graded At", "Question", "Selected", "Correct", "Points", "Max Points"}

// WriteGradingXLSX writes a workbook with one summary row per record on the
// Results sheet and one row per answered question on the Details sheet.
func WriteGradingXLSX(w io.Writer, records []model.GradingRecord, loc *time.Location) error {
	if len(records) == 0 {
		return ErrNoResults
	}
	if loc == nil {
		loc = time.Local
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(detailsSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	writeRow(f, resultsSheet, 1, append(toAny(gradingHeaders), "Grade"))
	writeRow(f, detailsSheet, 1, toAny(detailHeaders))

	detailRow := 2
	for i, rec := range records {
		gradedAt := rec.GradedAt.In(loc).Format(TimeLayout)
		writeRow(f, resultsSheet, i+2, []any{
			StudentName(rec),
			rec.ExamTitle,
			rec.Score,
			rec.TotalPoints,
			roundTenth(rec.Percentage),
			gradedAt,
			QuestionDetails(rec),
			analytics.GradeLetter(rec.Percentage),
		})
		for _, q := range rec.QuestionResults {
			writeRow(f, detailsSheet, detailRow, []any{
				StudentName(rec),
				rec.ExamTitle,
				gradedAt,
				q.Label,
				selectedLabels(q.Filled),
				q.Correct,
				q.Points,
				q.MaxPoints,
			})
			detailRow++
		}
	}

	_ = f.SetCellStyle(resultsSheet, "A1", "H1", bold)
	_ = f.SetCellStyle(detailsSheet, "A1", "H1", bold)
	_ = f.SetColWidth(resultsSheet, "A", "H", 18)
	_ = f.SetColWidth(resultsSheet, "G", "G", 48)
	_ = f.SetColWidth(detailsSheet, "A", "H", 16)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write excel: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// selectedLabels renders stored indices 1-based; records do not keep the
// option style of the question.
func selectedLabels(filled []int) string {
	if filled == nil {
		return ""
	}
	labels := make([]string, len(filled))
	for i, idx := range filled {
		labels[i] = exam.OptionLabel(model.StyleNumber, idx)
	}
	return strings.Join(labels, ", ")
}
