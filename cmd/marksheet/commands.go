package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/linkalls/marksheet/internal/analytics"
	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/export"
	"github.com/linkalls/marksheet/internal/grading"
	appI18n "github.com/linkalls/marksheet/internal/i18n"
	"github.com/linkalls/marksheet/internal/llm"
	"github.com/linkalls/marksheet/internal/model"
	"github.com/linkalls/marksheet/internal/store"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Normalize and validate an exam config JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	commonFlags(cmd)
	cmd.Flags().Bool("save", false, "Save the exam to the library when it is valid")
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a scanned answer sheet",
		RunE:  runGrade,
	}
	commonFlags(cmd)
	llmFlags(cmd)
	f := cmd.Flags()
	f.String("exam", "", "Exam config JSON file")
	f.String("exam-id", "", "Saved exam id (instead of --exam)")
	f.String("sheet", "", "Scanned answer sheet image (required)")
	f.String("student", "", "Student name for the grading record")
	f.Bool("save", false, "Append the result to the grading history")
	f.Duration("timeout", 3*time.Minute, "Overall timeout including retries")
	_ = cmd.MarkFlagRequired("sheet")
	cmd.MarkFlagsMutuallyExclusive("exam", "exam-id")
	cmd.MarkFlagsOneRequired("exam", "exam-id")
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft an exam config from exam text or an exam image",
		RunE:  runGenerate,
	}
	commonFlags(cmd)
	llmFlags(cmd)
	f := cmd.Flags()
	f.String("text", "", "File with the exam text")
	f.String("source", "", "Image of the exam")
	f.String("answer-key", "", "Image of the answer key")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.Bool("save", false, "Save the draft to the library when it is valid")
	f.Duration("timeout", 3*time.Minute, "Overall timeout including retries")
	cmd.MarkFlagsMutuallyExclusive("text", "source")
	cmd.MarkFlagsOneRequired("text", "source")
	return cmd
}

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Summarize grading history for one exam",
		RunE:  runAnalytics,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.String("exam", "", "Exam title (required)")
	f.String("chart", "", "Also write an HTML chart page to this path")
	f.Bool("json", false, "Print the analytics as JSON")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export grading history as CSV or XLSX",
		RunE:  runExport,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.String("format", "csv", "Output format (csv, xlsx)")
	f.String("exam", "", "Only export records for this exam title")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func sheetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheet FILE",
		Short: "Render a printable answer sheet for an exam config",
		Args:  cobra.ExactArgs(1),
		RunE:  runSheet,
	}
	commonFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

// loadExamFile reads an exam config, accepting partial and legacy JSON. The
// returned errors come from checking the file's config before normalization.
func loadExamFile(path string) (model.ExamConfig, []exam.ValidationError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ExamConfig{}, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var in model.ExamConfigInput
	if err := json.Unmarshal(data, &in); err != nil {
		return model.ExamConfig{}, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return exam.NormalizeConfig(in), exam.ValidateInput(in), nil
}

func loadImage(path string) (*llm.Image, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &llm.Image{Name: filepath.Base(path), MIMEType: mimeType, Data: data}, nil
}

// createOutput opens path for writing; "" and "-" mean stdout.
func createOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	v, _, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(v.GetString("lang")))

	cfg, errs, err := loadExamFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(errs) > 0 {
		fmt.Fprintln(out, appI18n.FormatValidationErrors(ctx, errs))
		return fmt.Errorf("%s: %d validation errors", args[0], len(errs))
	}
	fmt.Fprintln(out, appI18n.Td(ctx, "ExamValid", map[string]any{"Title": cfg.Title}),
		appI18n.Tp(ctx, "QuestionCount", len(cfg.Questions)))

	if !v.GetBool("save") {
		return nil
	}
	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()
	saved, err := db.Exams().Save("", cfg)
	if err != nil {
		return fmt.Errorf("save exam: %w", err)
	}
	fmt.Fprintln(out, saved.ID)
	return nil
}

func runGrade(cmd *cobra.Command, _ []string) error {
	v, _, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(v.GetString("lang")))
	sheet := strings.TrimSpace(v.GetString("sheet"))
	if sheet == "" {
		return errors.New("--sheet must name an image file")
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	var (
		cfg  model.ExamConfig
		errs []exam.ValidationError
	)
	if id := v.GetString("exam-id"); id != "" {
		saved, err := db.Exams().Get(id)
		if err != nil {
			return fmt.Errorf("load exam %s: %w", id, err)
		}
		cfg = saved.Config
		errs = exam.Validate(cfg)
	} else if cfg, errs, err = loadExamFile(v.GetString("exam")); err != nil {
		return err
	}
	if len(errs) > 0 {
		return errors.New(appI18n.FormatValidationErrors(ctx, errs))
	}

	img, err := loadImage(sheet)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()
	detected, err := newLLM(v).Detect(callCtx, cfg, *img)
	if err != nil {
		return fmt.Errorf("detect answers: %w", err)
	}

	sess := grading.NewSession(cfg, detected)
	printRows(ctx, cmd.OutOrStdout(), sess)

	if !v.GetBool("save") {
		return nil
	}
	rec, err := db.History().Add(sess.Record(v.GetString("student"), time.Now()))
	if err != nil {
		return fmt.Errorf("save grading record: %w", err)
	}
	slog.Info("grading record saved", "id", rec.ID, "exam", rec.ExamTitle, "score", rec.Score)
	return nil
}

func printRows(ctx context.Context, w io.Writer, sess *grading.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range sess.Rows() {
		status := appI18n.T(ctx, "Incorrect")
		if r.Correct {
			status = appI18n.T(ctx, "Correct")
		}
		selected := appI18n.T(ctx, "NotDetected")
		if r.Filled != nil {
			labels := make([]string, len(r.Filled))
			for i, idx := range r.Filled {
				labels[i] = exam.OptionLabel(r.OptionStyle, idx)
			}
			selected = "[" + strings.Join(labels, ", ") + "]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\n", r.Label, selected, status, r.Points, r.MaxPoints)
	}
	_ = tw.Flush()
	t := sess.Totals()
	fmt.Fprintln(w, appI18n.Td(ctx, "GradeSummary", map[string]any{
		"Earned": t.Earned, "Max": t.MaxPoints, "Percent": t.Percentage,
	}))
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	v, _, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(v.GetString("lang")))

	var req llm.GenerateRequest
	if path := v.GetString("text"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		req.Text = string(data)
	}
	if req.Source, err = loadImage(v.GetString("source")); err != nil {
		return err
	}
	if req.AnswerKey, err = loadImage(v.GetString("answer-key")); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()
	cfg, err := newLLM(v).Generate(callCtx, req)
	if err != nil {
		return fmt.Errorf("generate exam: %w", err)
	}

	w, closeOut, err := createOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		closeOut()
		return fmt.Errorf("write exam: %w", err)
	}
	if err := closeOut(); err != nil {
		return err
	}

	errs := exam.Validate(cfg)
	if len(errs) > 0 {
		slog.Warn("generated exam needs fixes", "errors", appI18n.FormatValidationErrors(ctx, errs))
		return nil
	}
	if v.GetBool("save") {
		db, err := openStore(v)
		if err != nil {
			return err
		}
		defer db.Close()
		saved, err := db.Exams().Save("", cfg)
		if err != nil {
			return fmt.Errorf("save exam: %w", err)
		}
		slog.Info("saved generated exam", "id", saved.ID, "title", saved.Config.Title)
	}
	return nil
}

func runAnalytics(cmd *cobra.Command, _ []string) error {
	v, _, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(v.GetString("lang")))

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	title := v.GetString("exam")
	records, err := db.History().ForExam(title)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	cfg, err := examForTitle(db, title, records)
	if err != nil {
		return err
	}
	a := analytics.Compute(cfg, analytics.FromRecords(records))

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(a); err != nil {
			return err
		}
	} else {
		printAnalytics(ctx, out, a)
	}

	if path := v.GetString("chart"); path != "" {
		w, closeOut, err := createOutput(path)
		if err != nil {
			return err
		}
		if err := export.RenderAnalytics(w, a); err != nil {
			closeOut()
			return fmt.Errorf("render chart: %w", err)
		}
		return closeOut()
	}
	return nil
}

// examForTitle finds a saved exam by title, falling back to the questions
// recorded in the history.
func examForTitle(db *store.Store, title string, records []model.GradingRecord) (model.ExamConfig, error) {
	saved, err := db.Exams().List()
	if err != nil {
		return model.ExamConfig{}, fmt.Errorf("load exams: %w", err)
	}
	for _, s := range saved {
		if s.Config.Title == title {
			return s.Config, nil
		}
	}
	return analytics.ConfigFromRecords(title, records), nil
}

func printAnalytics(ctx context.Context, w io.Writer, a analytics.ExamAnalytics) {
	fmt.Fprintf(w, "%s: %s\n", a.ExamTitle, appI18n.Tp(ctx, "StudentsGraded", a.TotalStudents))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%.1f\n", appI18n.T(ctx, "AverageScore"), a.AverageScore)
	fmt.Fprintf(tw, "%s\t%.1f\n", appI18n.T(ctx, "MedianScore"), a.MedianScore)
	fmt.Fprintf(tw, "%s\t%.2f\n", appI18n.T(ctx, "StandardDeviation"), a.StandardDeviation)
	fmt.Fprintf(tw, "%s\t%.1f / %.1f\n", appI18n.T(ctx, "HighLow"), a.HighestScore, a.LowestScore)
	fmt.Fprintln(tw)
	for _, b := range a.ScoreDistribution {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", b.Range, b.Count, b.Percentage)
	}
	fmt.Fprintln(tw)
	for _, q := range a.QuestionAnalytics {
		fmt.Fprintf(tw, "%s\t%d/%d\t%.1f%%\t%s\n", q.Label, q.CorrectCount, q.TotalAttempts, q.Accuracy, q.Difficulty)
	}
	_ = tw.Flush()
}

func runExport(cmd *cobra.Command, _ []string) error {
	v, _, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(v.GetString("lang")))

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	var records []model.GradingRecord
	if title := v.GetString("exam"); title != "" {
		records, err = db.History().ForExam(title)
	} else {
		records, err = db.History().List()
	}
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(records) == 0 {
		return errors.New(appI18n.T(ctx, "NoResults"))
	}

	write := export.WriteGradingCSV
	switch format := strings.ToLower(v.GetString("format")); format {
	case "csv":
	case "xlsx":
		write = export.WriteGradingXLSX
	default:
		return fmt.Errorf("unknown export format %q", format)
	}

	w, closeOut, err := createOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	if err := write(w, records, time.Local); err != nil {
		closeOut()
		return fmt.Errorf("write export: %w", err)
	}
	if err := closeOut(); err != nil {
		return err
	}
	slog.Info(appI18n.Tp(ctx, "RecordsExported", len(records)))
	return nil
}

func runSheet(cmd *cobra.Command, args []string) error {
	v, _, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(v.GetString("lang")))

	cfg, errs, err := loadExamFile(args[0])
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return errors.New(appI18n.FormatValidationErrors(ctx, errs))
	}

	w, closeOut, err := createOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	if err := export.Sheet(cfg, appI18n.T(ctx, "NameLabel")).Render(ctx, w); err != nil {
		closeOut()
		return fmt.Errorf("render sheet: %w", err)
	}
	return closeOut()
}
