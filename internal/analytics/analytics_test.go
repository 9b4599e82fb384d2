package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/linkalls/marksheet/internal/model"
)

func sampleConfig() model.ExamConfig {
	return model.ExamConfig{
		Title: "Quiz",
		Questions: []model.Question{
			{ID: "q1", Label: "Q1", Type: model.QuestionMark, Points: 5},
			{ID: "q2", Label: "Q2", Type: model.QuestionMark, Points: 5},
			{ID: "q3", Label: "Q3", Type: model.QuestionText, Points: 10},
		},
	}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestComputeEmpty(t *testing.T) {
	a := Compute(sampleConfig(), nil)

	if a.TotalStudents != 0 {
		t.Errorf("TotalStudents = %d, want 0", a.TotalStudents)
	}
	if len(a.ScoreDistribution) != 6 {
		t.Fatalf("expected 6 buckets, got %d", len(a.ScoreDistribution))
	}
	for _, b := range a.ScoreDistribution {
		if b.Count != 0 || b.Percentage != 0 {
			t.Errorf("bucket %s = {%d, %v}, want zero", b.Range, b.Count, b.Percentage)
		}
	}
	if len(a.QuestionAnalytics) != 3 {
		t.Fatalf("expected 3 question entries, got %d", len(a.QuestionAnalytics))
	}
	for _, q := range a.QuestionAnalytics {
		if q.Difficulty != DifficultyMedium {
			t.Errorf("%s difficulty = %s, want Medium", q.QuestionID, q.Difficulty)
		}
	}
}

func TestComputeStatistics(t *testing.T) {
	results := []StudentResult{
		{Score: 10, TotalPoints: 10, QuestionResults: []QuestionOutcome{{"q1", true}, {"q2", true}}},
		{Score: 5, TotalPoints: 10, QuestionResults: []QuestionOutcome{{"q1", true}, {"q2", false}}},
		{Score: 0, TotalPoints: 10, QuestionResults: []QuestionOutcome{{"q1", false}, {"q2", false}}},
		{Score: 5, TotalPoints: 10, QuestionResults: []QuestionOutcome{{"q1", true}}},
	}
	a := Compute(sampleConfig(), results)

	if a.TotalStudents != 4 {
		t.Errorf("TotalStudents = %d, want 4", a.TotalStudents)
	}
	if !almostEqual(a.AverageScore, 5) {
		t.Errorf("AverageScore = %v, want 5", a.AverageScore)
	}
	if !almostEqual(a.MedianScore, 5) {
		t.Errorf("MedianScore = %v, want 5", a.MedianScore)
	}
	if a.HighestScore != 10 || a.LowestScore != 0 {
		t.Errorf("High/Low = %v/%v, want 10/0", a.HighestScore, a.LowestScore)
	}
	// population variance: (25 + 0 + 25 + 0) / 4
	if !almostEqual(a.StandardDeviation, math.Sqrt(12.5)) {
		t.Errorf("StandardDeviation = %v, want %v", a.StandardDeviation, math.Sqrt(12.5))
	}

	wantCounts := map[string]int{"90-100%": 1, "50-59%": 2, "Below 50%": 1}
	for _, b := range a.ScoreDistribution {
		if b.Count != wantCounts[b.Range] {
			t.Errorf("bucket %s count = %d, want %d", b.Range, b.Count, wantCounts[b.Range])
		}
	}
	if !almostEqual(a.ScoreDistribution[4].Percentage, 50) {
		t.Errorf("50-59%% percentage = %v, want 50", a.ScoreDistribution[4].Percentage)
	}

	q1, q2, q3 := a.QuestionAnalytics[0], a.QuestionAnalytics[1], a.QuestionAnalytics[2]
	if q1.TotalAttempts != 4 || q1.CorrectCount != 3 || q1.IncorrectCount != 1 {
		t.Errorf("q1 = %+v", q1)
	}
	if !almostEqual(q1.Accuracy, 75) || q1.Difficulty != DifficultyMedium {
		t.Errorf("q1 accuracy/difficulty = %v/%s", q1.Accuracy, q1.Difficulty)
	}
	if q2.TotalAttempts != 3 || q2.CorrectCount != 1 || q2.Difficulty != DifficultyVeryHard {
		t.Errorf("q2 = %+v", q2)
	}
	if q3.TotalAttempts != 0 || q3.Accuracy != 0 || q3.Difficulty != DifficultyVeryHard {
		t.Errorf("q3 = %+v", q3)
	}
}

func TestComputeMedianOdd(t *testing.T) {
	results := []StudentResult{{Score: 9, TotalPoints: 10}, {Score: 1, TotalPoints: 10}, {Score: 4, TotalPoints: 10}}
	if got := Compute(sampleConfig(), results).MedianScore; got != 4 {
		t.Errorf("MedianScore = %v, want 4", got)
	}
}

func TestDistributionBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{90, "90-100%"},
		{100, "90-100%"},
		{89.5, "80-89%"},
		{80, "80-89%"},
		{79.9, "70-79%"},
		{60, "60-69%"},
		{50, "50-59%"},
		{49.99, "Below 50%"},
		{0, "Below 50%"},
	}
	for _, tt := range tests {
		a := Compute(sampleConfig(), []StudentResult{{Score: tt.score, TotalPoints: 100}})
		for _, b := range a.ScoreDistribution {
			want := 0
			if b.Range == tt.want {
				want = 1
			}
			if b.Count != want {
				t.Errorf("score %v: bucket %s count = %d, want %d", tt.score, b.Range, b.Count, want)
			}
		}
	}
}

func TestZeroTotalPoints(t *testing.T) {
	a := Compute(sampleConfig(), []StudentResult{{Score: 0, TotalPoints: 0}})
	if a.ScoreDistribution[5].Count != 1 {
		t.Errorf("expected zero-total student in Below 50%%, got %+v", a.ScoreDistribution)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		accuracy float64
		want     Difficulty
	}{
		{100, DifficultyEasy},
		{80, DifficultyEasy},
		{79.99, DifficultyMedium},
		{60, DifficultyMedium},
		{40, DifficultyHard},
		{39.9, DifficultyVeryHard},
		{0, DifficultyVeryHard},
	}
	for _, tt := range tests {
		if got := Classify(tt.accuracy); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.accuracy, got, tt.want)
		}
	}
}

func TestGradeLetter(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{95, "A"}, {90, "A"}, {85, "B"}, {70, "C"}, {60, "D"}, {59.9, "F"},
	}
	for _, tt := range tests {
		if got := GradeLetter(tt.pct); got != tt.want {
			t.Errorf("GradeLetter(%v) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestFromRecords(t *testing.T) {
	recs := []model.GradingRecord{{
		Score: 7, TotalPoints: 10, GradedAt: time.Now(),
		QuestionResults: []model.QuestionResult{{QuestionID: "q1", Correct: true}, {QuestionID: "q2"}},
	}}
	got := FromRecords(recs)
	if len(got) != 1 || got[0].Score != 7 || got[0].TotalPoints != 10 || len(got[0].QuestionResults) != 2 {
		t.Fatalf("FromRecords() = %+v", got)
	}
	if !got[0].QuestionResults[0].Correct || got[0].QuestionResults[1].Correct {
		t.Errorf("outcomes not carried over: %+v", got[0].QuestionResults)
	}
}

func TestConfigFromRecords(t *testing.T) {
	recs := []model.GradingRecord{
		{QuestionResults: []model.QuestionResult{{QuestionID: "q2", Label: "2", MaxPoints: 3}}},
		{QuestionResults: []model.QuestionResult{{QuestionID: "q1", Label: "1", MaxPoints: 2}, {QuestionID: "q2", Label: "2", MaxPoints: 3}}},
	}
	cfg := ConfigFromRecords("Old Quiz", recs)
	if cfg.Title != "Old Quiz" || len(cfg.Questions) != 2 {
		t.Fatalf("ConfigFromRecords() = %+v", cfg)
	}
	if cfg.Questions[0].ID != "q2" || cfg.Questions[1].ID != "q1" || cfg.Questions[1].Points != 2 {
		t.Errorf("questions should keep first-seen order: %+v", cfg.Questions)
	}
	if !cfg.Questions[0].IsMark() {
		t.Error("rebuilt questions should be mark questions")
	}
}
