// Package analytics aggregates independent student results for one exam.
package analytics

import (
	"math"
	"slices"

	"github.com/linkalls/marksheet/internal/model"
)

// Difficulty is a question's tier by accuracy.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "Easy"
	DifficultyMedium   Difficulty = "Medium"
	DifficultyHard     Difficulty = "Hard"
	DifficultyVeryHard Difficulty = "Very Hard"
)

// QuestionOutcome is whether one student answered one question correctly.
type QuestionOutcome struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
}

// StudentResult is one graded answer sheet.
type StudentResult struct {
	Score           float64           `json:"score"`
	TotalPoints     float64           `json:"totalPoints"`
	QuestionResults []QuestionOutcome `json:"questionResults"`
}

// DistributionBucket counts students whose percentage falls in [Min, Max].
type DistributionBucket struct {
	Range      string  `json:"range"`
	Min        int     `json:"min"`
	Max        int     `json:"max"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// QuestionAnalytics summarizes how students did on one question.
type QuestionAnalytics struct {
	QuestionID     string     `json:"questionId"`
	Label          string     `json:"label"`
	TotalAttempts  int        `json:"totalAttempts"`
	CorrectCount   int        `json:"correctCount"`
	IncorrectCount int        `json:"incorrectCount"`
	Accuracy       float64    `json:"accuracy"`
	Difficulty     Difficulty `json:"difficulty"`
}

// ExamAnalytics is the aggregate over every student result of an exam.
type ExamAnalytics struct {
	ExamTitle         string               `json:"examTitle"`
	TotalStudents     int                  `json:"totalStudents"`
	AverageScore      float64              `json:"averageScore"`
	HighestScore      float64              `json:"highestScore"`
	LowestScore       float64              `json:"lowestScore"`
	MedianScore       float64              `json:"medianScore"`
	StandardDeviation float64              `json:"standardDeviation"`
	ScoreDistribution []DistributionBucket `json:"scoreDistribution"`
	QuestionAnalytics []QuestionAnalytics  `json:"questionAnalytics"`
}

var buckets = []DistributionBucket{
	{Range: "90-100%", Min: 90, Max: 100},
	{Range: "80-89%", Min: 80, Max: 89},
	{Range: "70-79%", Min: 70, Max: 79},
	{Range: "60-69%", Min: 60, Max: 69},
	{Range: "50-59%", Min: 50, Max: 59},
	{Range: "Below 50%", Min: 0, Max: 49},
}

// Compute aggregates results for cfg. An empty result list yields a
// zero-filled record with all buckets present and every question at Medium.
func Compute(cfg model.ExamConfig, results []StudentResult) ExamAnalytics {
	out := ExamAnalytics{
		ExamTitle:         cfg.Title,
		TotalStudents:     len(results),
		ScoreDistribution: slices.Clone(buckets),
		QuestionAnalytics: make([]QuestionAnalytics, 0, len(cfg.Questions)),
	}

	if len(results) == 0 {
		for _, q := range cfg.Questions {
			out.QuestionAnalytics = append(out.QuestionAnalytics, QuestionAnalytics{
				QuestionID: q.ID,
				Label:      q.Label,
				Difficulty: DifficultyMedium,
			})
		}
		return out
	}

	n := float64(len(results))
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
		out.ScoreDistribution[bucketIndex(Percent(r))].Count++
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	out.AverageScore = sum / n
	out.HighestScore = slices.Max(scores)
	out.LowestScore = slices.Min(scores)
	out.MedianScore = median(scores)

	var variance float64
	for _, s := range scores {
		variance += (s - out.AverageScore) * (s - out.AverageScore)
	}
	out.StandardDeviation = math.Sqrt(variance / n)

	for i := range out.ScoreDistribution {
		out.ScoreDistribution[i].Percentage = float64(out.ScoreDistribution[i].Count) / n * 100
	}

	for _, q := range cfg.Questions {
		qa := QuestionAnalytics{QuestionID: q.ID, Label: q.Label}
		for _, r := range results {
			for _, o := range r.QuestionResults {
				if o.QuestionID != q.ID {
					continue
				}
				qa.TotalAttempts++
				if o.Correct {
					qa.CorrectCount++
				}
				break
			}
		}
		qa.IncorrectCount = qa.TotalAttempts - qa.CorrectCount
		if qa.TotalAttempts > 0 {
			qa.Accuracy = float64(qa.CorrectCount) / float64(qa.TotalAttempts) * 100
		}
		qa.Difficulty = Classify(qa.Accuracy)
		out.QuestionAnalytics = append(out.QuestionAnalytics, qa)
	}

	return out
}

// Percent is the student's score as a percentage of the total points, or 0
// when the total is not positive.
func Percent(r StudentResult) float64 {
	if r.TotalPoints <= 0 {
		return 0
	}
	return r.Score / r.TotalPoints * 100
}

// bucketIndex uses the lower bounds so fractional percentages such as 89.5
// still land in exactly one bucket.
func bucketIndex(p float64) int {
	for i, b := range buckets {
		if p >= float64(b.Min) {
			return i
		}
	}
	return len(buckets) - 1
}

// Classify maps an accuracy percentage to a difficulty tier.
func Classify(accuracy float64) Difficulty {
	switch {
	case accuracy >= 80:
		return DifficultyEasy
	case accuracy >= 60:
		return DifficultyMedium
	case accuracy >= 40:
		return DifficultyHard
	default:
		return DifficultyVeryHard
	}
}

// GradeLetter converts a percentage into a letter grade.
func GradeLetter(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

func median(scores []float64) float64 {
	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// FromRecords converts stored grading records into analytics input.
func FromRecords(records []model.GradingRecord) []StudentResult {
	out := make([]StudentResult, 0, len(records))
	for _, rec := range records {
		r := StudentResult{Score: float64(rec.Score), TotalPoints: float64(rec.TotalPoints)}
		for _, q := range rec.QuestionResults {
			r.QuestionResults = append(r.QuestionResults, QuestionOutcome{QuestionID: q.QuestionID, Correct: q.Correct})
		}
		out = append(out, r)
	}
	return out
}

// ConfigFromRecords rebuilds the mark questions of an exam from the question
// results stored on its records, in first-seen order. It serves exams whose
// template is no longer in the library.
func ConfigFromRecords(title string, records []model.GradingRecord) model.ExamConfig {
	cfg := model.ExamConfig{Title: title}
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, qr := range rec.QuestionResults {
			if seen[qr.QuestionID] {
				continue
			}
			seen[qr.QuestionID] = true
			cfg.Questions = append(cfg.Questions, model.Question{
				ID:     qr.QuestionID,
				Label:  qr.Label,
				Points: qr.MaxPoints,
				Type:   model.QuestionMark,
			})
		}
	}
	return cfg
}
