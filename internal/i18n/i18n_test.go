package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/model"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang, id, want string
	}{
		{"en", "AppTitle", "Marksheet"},
		{"ja", "AppTitle", "マークシート"},
		{"en", "NameLabel", "Name / Student ID"},
		{"ja", "NotDetected", "未検出"},
		{"fr", "Correct", "correct"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionCount", 1); got != "1 question" {
		t.Errorf("Tp(QuestionCount, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionCount", 5); got != "5 questions" {
		t.Errorf("Tp(QuestionCount, 5) = %q", got)
	}

	ja := initLang(t, "ja")
	if got := Tp(ja, "QuestionCount", 1); got != "1問" {
		t.Errorf("Tp(ja QuestionCount, 1) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "GradeSummary", map[string]any{"Earned": 7, "Max": 10, "Percent": 70})
	if got != "Score: 7 / 10 (70%)" {
		t.Errorf("Td(GradeSummary) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestValidationMessagesMatchEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	bad := model.ExamConfig{Questions: []model.Question{
		{Type: model.QuestionMark, Points: -1, OptionsCount: 11, CorrectOptions: []int{12}},
		{ID: "t", Label: strings.Repeat("x", 51), Type: model.QuestionText, Points: 1001},
		{ID: "z", Label: "Z", Type: "essay"},
		{ID: "z", Label: "Z2", Type: model.QuestionText, BoxHeight: model.BoxSmall},
	}}
	errs := exam.Validate(bad)
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}
	for _, e := range ValidationErrors(ctx, errs) {
		orig := errs[0]
		for _, o := range errs {
			if o.Field == e.Field && o.Code == e.Code {
				orig = o
			}
		}
		if e.Message != orig.Message {
			t.Errorf("%s: translated %q, built-in %q", e.Code, e.Message, orig.Message)
		}
	}
}

func TestValidationJapanese(t *testing.T) {
	ctx := initLang(t, "ja")

	q := model.Question{ID: "q1", Label: "Q1", Type: model.QuestionMark, OptionsCount: 4, OptionStyle: model.StyleKana, CorrectOptions: []int{7}}
	errs := exam.Validate(model.ExamConfig{Title: "", Questions: []model.Question{q}})

	got := FormatValidationErrors(ctx, errs)
	for _, want := range []string{"2件の入力エラーがあります:", "1. 試験タイトルは必須です", "2. 問1: 正解の番号7が範囲外です"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatValidationErrors() = %q, missing %q", got, want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(T(r.Context(), "AppTitle")))
	}))

	tests := []struct {
		name, query, header, want string
	}{
		{"default", "", "", "Marksheet"},
		{"header", "", "ja-JP,ja;q=0.9", "マークシート"},
		{"query wins", "?lang=en", "ja", "Marksheet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}
