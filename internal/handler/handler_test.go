package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linkalls/marksheet/internal/debuglog"
	appI18n "github.com/linkalls/marksheet/internal/i18n"
	"github.com/linkalls/marksheet/internal/llm"
	"github.com/linkalls/marksheet/internal/model"
	"github.com/linkalls/marksheet/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeAI returns canned detections and records what it was sent.
type fakeAI struct {
	mu       sync.Mutex
	detected []model.VisionGradeResult
	err      error
	images   []llm.Image
	// block, when set, holds Detect until it is closed.
	block   chan struct{}
	entered chan struct{}

	generated model.ExamConfig
	genReq    llm.GenerateRequest
}

func (f *fakeAI) Detect(ctx context.Context, cfg model.ExamConfig, img llm.Image) ([]model.VisionGradeResult, error) {
	f.mu.Lock()
	f.images = append(f.images, img)
	block, entered := f.block, f.entered
	detected, err := f.detected, f.err
	f.mu.Unlock()
	if block != nil {
		entered <- struct{}{}
		<-block
	}
	return detected, err
}

func (f *fakeAI) respond(detected []model.VisionGradeResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detected, f.err = detected, err
}

func (f *fakeAI) lastImage() llm.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[len(f.images)-1]
}

func (f *fakeAI) lastGenerate() llm.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.genReq
}

func (f *fakeAI) Generate(ctx context.Context, req llm.GenerateRequest) (model.ExamConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genReq = req
	return f.generated, f.err
}

type testServer struct {
	*httptest.Server
	ai    *fakeAI
	store *store.Store
	h     *Handler
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	ai := &fakeAI{}
	h, err := New(ai, s.Exams(), s.History(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, ai: ai, store: s, h: h}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) upload(t *testing.T, path string, files map[string][]byte, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(data)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	resp, err := http.Post(ts.URL+path, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status = %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func quizInput() map[string]any {
	return map[string]any{
		"title": "Unit Quiz",
		"questions": []any{
			map[string]any{"id": "q1", "label": "1", "points": 4, "type": "mark", "optionsCount": 4, "optionStyle": "alphabet", "correctOptions": []int{1}},
			map[string]any{"id": "q2", "label": "2", "points": 6, "type": "mark", "optionsCount": 3, "optionStyle": "number", "correctOptions": []int{0, 2}},
			map[string]any{"id": "t1", "label": "essay", "points": 10, "type": "text", "boxHeight": "large"},
		},
	}
}

// badKeyInput is a quiz whose answer key names an option the question lacks.
func badKeyInput() map[string]any {
	return map[string]any{
		"title": "Bad Key",
		"questions": []any{
			map[string]any{"id": "q1", "label": "1", "points": 2, "type": "mark", "optionsCount": 4, "optionStyle": "alphabet", "correctOptions": []int{5}},
		},
	}
}

func TestValidateEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name      string
		lang      string
		body      any
		wantValid bool
		want      string
	}{
		{"valid exam", "", quizInput(), true, `Exam "Unit Quiz" is valid.`},
		{"no questions", "", map[string]any{"title": "Empty", "questions": []any{}}, false, "At least one question is required"},
		{"translated", "?lang=ja", map[string]any{"title": "Empty"}, false, "問題を1つ以上追加してください"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/api/validate"+tt.lang, tt.body)
			expectStatus(t, resp, http.StatusOK)
			got := decode[validationResponse](t, resp)
			if got.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v (%+v)", got.Valid, tt.wantValid, got.Errors)
			}
			if got.Summary != tt.want {
				t.Errorf("summary = %q, want %q", got.Summary, tt.want)
			}
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp := ts.do(t, http.MethodPost, "/api/normalize", map[string]any{
		"questions": []any{map[string]any{"type": "mark", "optionsCount": 3, "correctOption": 2}},
	})
	expectStatus(t, resp, http.StatusOK)
	cfg := decode[model.ExamConfig](t, resp)
	if cfg.Title != "Untitled Exam" {
		t.Errorf("title = %q", cfg.Title)
	}
	q := cfg.Questions[0]
	if q.Label != "Q1" || q.OptionStyle != model.StyleAlphabet || len(q.CorrectOptions) != 1 || q.CorrectOptions[0] != 2 {
		t.Errorf("question not normalized: %+v", q)
	}
}

func TestExamCRUD(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.do(t, http.MethodPost, "/api/exams", quizInput())
	expectStatus(t, resp, http.StatusCreated)
	created := decode[model.SavedExam](t, resp)

	resp = ts.do(t, http.MethodPost, "/api/exams", map[string]any{"title": "Bad", "questions": []any{}})
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	resp = ts.do(t, http.MethodGet, "/api/exams/"+created.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[model.SavedExam](t, resp); got.Config.Title != "Unit Quiz" || len(got.Config.Questions) != 3 {
		t.Errorf("GET exam = %+v", got)
	}

	in := quizInput()
	in["title"] = "Unit Quiz v2"
	resp = ts.do(t, http.MethodPut, "/api/exams/"+created.ID, in)
	expectStatus(t, resp, http.StatusOK)

	resp = ts.do(t, http.MethodPost, "/api/exams/"+created.ID+"/duplicate", nil)
	expectStatus(t, resp, http.StatusCreated)
	if dup := decode[model.SavedExam](t, resp); dup.Config.Title != "Unit Quiz v2 (Copy)" {
		t.Errorf("duplicate title = %q", dup.Config.Title)
	}

	resp = ts.do(t, http.MethodGet, "/api/exams", nil)
	expectStatus(t, resp, http.StatusOK)
	if list := decode[[]model.SavedExam](t, resp); len(list) != 2 {
		t.Errorf("expected 2 exams, got %d", len(list))
	}

	resp = ts.do(t, http.MethodDelete, "/api/exams/"+created.ID, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = ts.do(t, http.MethodGet, "/api/exams/"+created.ID, nil)
	expectStatus(t, resp, http.StatusNotFound)
	if body := decode[map[string]string](t, resp); body["error"] == "" {
		t.Error("expected an error message")
	}
}

func TestExamDownloads(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp := ts.do(t, http.MethodPost, "/api/exams", quizInput())
	expectStatus(t, resp, http.StatusCreated)
	created := decode[model.SavedExam](t, resp)

	resp = ts.do(t, http.MethodGet, "/api/exams/"+created.ID+"/sheet?lang=ja", nil)
	expectStatus(t, resp, http.StatusOK)
	html, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(html), "氏名 / 学籍番号") || strings.Count(string(html), `class="bubble"`) != 7 {
		t.Errorf("unexpected sheet: %s", html)
	}

	resp = ts.do(t, http.MethodGet, "/api/exams/"+created.ID+"/export.csv", nil)
	expectStatus(t, resp, http.StatusOK)
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "Unit Quiz.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	csv, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(csv), "Exam: Unit Quiz\n") {
		t.Errorf("unexpected CSV: %s", csv)
	}
}

func TestGradingFlow(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp := ts.do(t, http.MethodPost, "/api/exams", quizInput())
	expectStatus(t, resp, http.StatusCreated)
	created := decode[model.SavedExam](t, resp)

	resp = ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"examId": created.ID})
	expectStatus(t, resp, http.StatusCreated)
	sess := decode[sessionView](t, resp)
	if len(sess.Rows) != 2 || sess.Totals.MaxPoints != 10 || sess.Totals.Earned != 0 {
		t.Fatalf("new session = %+v", sess)
	}

	ts.ai.respond([]model.VisionGradeResult{
		{ID: "q1", Filled: []int{1}},
		{ID: "q2", Filled: []int{0}},
		{ID: "ghost", Filled: []int{0}},
	}, nil)
	resp = ts.upload(t, "/api/sessions/"+sess.ID+"/scan", map[string][]byte{"image": pngData}, nil)
	expectStatus(t, resp, http.StatusOK)
	sess = decode[sessionView](t, resp)
	if sess.Totals.Earned != 4 || sess.Totals.Percentage != 40 {
		t.Errorf("after scan totals = %+v", sess.Totals)
	}
	if sess.Summary != "Score: 4 / 10 (40%)" {
		t.Errorf("summary = %q", sess.Summary)
	}
	if mt := ts.ai.lastImage().MIMEType; mt != "image/png" {
		t.Errorf("image MIME type = %q", mt)
	}

	resp = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/rows/q2/toggle", map[string]int{"option": 2})
	expectStatus(t, resp, http.StatusOK)
	sess = decode[sessionView](t, resp)
	if sess.Totals.Earned != 10 || sess.Selected != "q2" {
		t.Errorf("after toggle = %+v", sess)
	}

	resp = ts.do(t, http.MethodPut, "/api/sessions/"+sess.ID+"/rows/q1", map[string]any{"filled": []int{7}})
	expectStatus(t, resp, http.StatusBadRequest)
	resp = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/rows/nope/toggle", map[string]int{"option": 0})
	expectStatus(t, resp, http.StatusNotFound)

	resp = ts.do(t, http.MethodPut, "/api/sessions/"+sess.ID+"/rows/q1", map[string]any{"filled": nil})
	expectStatus(t, resp, http.StatusOK)
	sess = decode[sessionView](t, resp)
	if sess.Rows[0].Filled != nil || sess.Totals.Earned != 6 {
		t.Errorf("after clearing q1 = %+v", sess)
	}

	resp = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/save", map[string]string{"studentName": "Aoi <b>"})
	expectStatus(t, resp, http.StatusCreated)
	rec := decode[model.GradingRecord](t, resp)
	if rec.StudentName != "Aoi b" || rec.Score != 6 || rec.ExamTitle != "Unit Quiz" || len(rec.QuestionResults) != 2 {
		t.Errorf("saved record = %+v", rec)
	}

	resp = ts.do(t, http.MethodGet, "/api/history?exam=Unit%20Quiz", nil)
	expectStatus(t, resp, http.StatusOK)
	if records := decode[[]model.GradingRecord](t, resp); len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}

	resp = ts.do(t, http.MethodGet, "/api/analytics?exam=Unit%20Quiz", nil)
	expectStatus(t, resp, http.StatusOK)
	a := decode[map[string]any](t, resp)
	if a["totalStudents"] != float64(1) || a["averageScore"] != float64(6) {
		t.Errorf("analytics = %v", a)
	}

	resp = ts.do(t, http.MethodGet, "/api/analytics/chart?exam=Unit%20Quiz", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = ts.do(t, http.MethodGet, "/api/history/export.xlsx", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	ts := newTestServer(t, Config{})
	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing exam", map[string]any{}, http.StatusBadRequest},
		{"unknown exam", map[string]any{"examId": "missing"}, http.StatusNotFound},
		{"invalid inline config", map[string]any{"config": map[string]any{"title": "x"}}, http.StatusUnprocessableEntity},
		{"inline config", map[string]any{"config": quizInput()}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, ts.do(t, http.MethodPost, "/api/sessions", tt.body), tt.want)
		})
	}
	expectStatus(t, ts.do(t, http.MethodGet, "/api/sessions/missing", nil), http.StatusNotFound)
}

func TestScanFailureLeavesRows(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"config":   quizInput(),
		"detected": []model.VisionGradeResult{{ID: "q1", Filled: []int{1}}},
	})
	expectStatus(t, resp, http.StatusCreated)
	sess := decode[sessionView](t, resp)

	tests := []struct {
		err  error
		want int
	}{
		{llm.ErrNoAPIKey, http.StatusServiceUnavailable},
		{llm.ErrRefusal, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		ts.ai.respond(nil, tt.err)
		resp := ts.upload(t, "/api/sessions/"+sess.ID+"/scan", map[string][]byte{"image": pngData}, nil)
		expectStatus(t, resp, tt.want)
	}

	resp = ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[sessionView](t, resp); got.Totals.Earned != 4 || got.Busy {
		t.Errorf("rows changed after failed scans: %+v", got)
	}

	resp = ts.upload(t, "/api/sessions/"+sess.ID+"/scan", nil, nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestScanConflict(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"config": quizInput()})
	expectStatus(t, resp, http.StatusCreated)
	sess := decode[sessionView](t, resp)

	ts.ai.mu.Lock()
	ts.ai.block = make(chan struct{})
	ts.ai.entered = make(chan struct{}, 1)
	ts.ai.detected = []model.VisionGradeResult{}
	ts.ai.mu.Unlock()

	done := make(chan int)
	go func() {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("image", "a.png")
		_, _ = fw.Write(pngData)
		_ = mw.Close()
		r, err := http.Post(ts.URL+"/api/sessions/"+sess.ID+"/scan", mw.FormDataContentType(), &buf)
		if err != nil {
			done <- 0
			return
		}
		r.Body.Close()
		done <- r.StatusCode
	}()

	<-ts.ai.entered
	resp = ts.upload(t, "/api/sessions/"+sess.ID+"/scan", map[string][]byte{"image": pngData}, nil)
	expectStatus(t, resp, http.StatusConflict)

	close(ts.ai.block)
	if status := <-done; status != http.StatusOK {
		t.Errorf("first scan status = %d, want 200", status)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.ai.mu.Lock()
	ts.ai.generated = model.ExamConfig{Title: "Draft", Questions: []model.Question{
		{ID: "q1", Label: "1", Points: 1, Type: model.QuestionMark, OptionsCount: 4, OptionStyle: model.StyleKana},
	}}
	ts.ai.mu.Unlock()

	resp := ts.upload(t, "/api/exams/generate", map[string][]byte{"answer_key": pngData}, map[string]string{"text": "1. pick one"})
	expectStatus(t, resp, http.StatusOK)
	got := decode[validationResponse](t, resp)
	if !got.Valid || got.Config.Title != "Draft" {
		t.Errorf("generate = %+v", got)
	}
	if req := ts.ai.lastGenerate(); req.Text != "1. pick one" || req.AnswerKey == nil || req.Source != nil {
		t.Errorf("request = %+v", req)
	}

	ts.ai.respond(nil, llm.ErrNoSource)
	resp = ts.upload(t, "/api/exams/generate", nil, nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestImportExams(t *testing.T) {
	ts := newTestServer(t, Config{})
	data, _ := json.Marshal([]any{quizInput(), map[string]any{"title": "Empty"}, badKeyInput()})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("exams_file", "exams.json")
	_, _ = fw.Write(data)
	_ = mw.Close()
	resp, err := http.Post(ts.URL+"/api/exams/import", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	got := decode[importResult](t, resp)
	if len(got.Imported) != 1 || len(got.Rejected) != 2 || got.Rejected[0].Index != 1 || got.Rejected[1].Index != 2 {
		t.Errorf("import = %+v", got)
	}
}

func TestAnswerKeyOutOfRange(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.do(t, http.MethodPost, "/api/validate", badKeyInput())
	expectStatus(t, resp, http.StatusOK)
	got := decode[validationResponse](t, resp)
	if got.Valid || len(got.Errors) != 1 || got.Errors[0].Field != "questions[0].correctOptions" {
		t.Fatalf("validate = %+v", got)
	}

	tests := []struct {
		name string
		body any
		path string
	}{
		{"create exam", badKeyInput(), "/api/exams"},
		{"inline session", map[string]any{"config": badKeyInput()}, "/api/sessions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, ts.do(t, http.MethodPost, tt.path, tt.body), http.StatusUnprocessableEntity)
		})
	}

	resp = ts.do(t, http.MethodGet, "/api/exams", nil)
	expectStatus(t, resp, http.StatusOK)
	if list := decode[[]model.SavedExam](t, resp); len(list) != 0 {
		t.Errorf("rejected exam was saved: %+v", list)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	ts := newTestServer(t, Config{})
	h := ts.store.History()
	first, _ := h.Add(model.GradingRecord{ExamTitle: "Quiz", Score: 1, TotalPoints: 2,
		QuestionResults: []model.QuestionResult{{QuestionID: "q1", Label: "Q1", MaxPoints: 2}}})
	_, _ = h.Add(model.GradingRecord{ExamTitle: "Quiz", Score: 2, TotalPoints: 2,
		QuestionResults: []model.QuestionResult{{QuestionID: "q1", Label: "Q1", Points: 2, MaxPoints: 2, Correct: true}}})

	resp := ts.do(t, http.MethodGet, "/api/analytics?exam=Quiz", nil)
	expectStatus(t, resp, http.StatusOK)
	a := decode[map[string]any](t, resp)
	qa, _ := a["questionAnalytics"].([]any)
	if len(qa) != 1 {
		t.Fatalf("questions should be rebuilt from records: %v", a)
	}
	if row := qa[0].(map[string]any); row["accuracy"] != float64(50) || row["label"] != "Q1" {
		t.Errorf("question analytics = %v", row)
	}
	expectStatus(t, ts.do(t, http.MethodGet, "/api/analytics", nil), http.StatusBadRequest)

	resp = ts.do(t, http.MethodGet, "/api/history/export.csv", nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if lines := strings.Split(string(body), "\n"); len(lines) != 3 {
		t.Errorf("expected header and 2 rows, got %q", body)
	}

	expectStatus(t, ts.do(t, http.MethodDelete, "/api/history/"+first.ID, nil), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/history/"+first.ID, nil), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/history", nil), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/history/export.csv", nil), http.StatusNotFound)
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t, Config{AdminPassword: "s3cret"})

	tests := []struct {
		name       string
		user, pass string
		want       int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "root", "s3cret", http.StatusUnauthorized},
		{"admin", "admin", "s3cret", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(quizInput())
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/exams", bytes.NewReader(data))
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			expectStatus(t, resp, tt.want)
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}

	// Reads stay open.
	expectStatus(t, ts.do(t, http.MethodGet, "/api/exams", nil), http.StatusOK)
}

func TestDebugLogs(t *testing.T) {
	expectStatus(t, newTestServer(t, Config{}).do(t, http.MethodGet, "/api/debug/logs", nil), http.StatusNotFound)

	buf := debuglog.New(10)
	ts := newTestServer(t, Config{Debug: buf})
	buf.Add(debuglog.Entry{Time: time.Now(), Level: "INFO", Message: "hello"})

	resp := ts.do(t, http.MethodGet, "/api/debug/logs", nil)
	expectStatus(t, resp, http.StatusOK)
	entries := decode[[]map[string]any](t, resp)
	if len(entries) != 1 || entries[0]["message"] != "hello" {
		t.Errorf("entries = %v", entries)
	}

	expectStatus(t, ts.do(t, http.MethodDelete, "/api/debug/logs", nil), http.StatusNoContent)
	if n := len(buf.Entries()); n != 0 {
		t.Errorf("expected cleared buffer, got %d entries", n)
	}
}
