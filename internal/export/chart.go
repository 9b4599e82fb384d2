package export

import (
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/linkalls/marksheet/internal/analytics"
)

// DistributionChart plots how many students fall in each score bucket.
func DistributionChart(a analytics.ExamAnalytics) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Score Distribution",
			Subtitle: a.ExamTitle,
		}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Students"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
	)

	labels := make([]string, 0, len(a.ScoreDistribution))
	items := make([]opts.BarData, 0, len(a.ScoreDistribution))
	for _, b := range a.ScoreDistribution {
		labels = append(labels, b.Range)
		items = append(items, opts.BarData{Value: b.Count})
	}
	bar.SetXAxis(labels).AddSeries("Students", items)
	return bar
}

// AccuracyChart plots the accuracy of every question in exam order.
func AccuracyChart(a analytics.ExamAnalytics) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Question Accuracy",
			Subtitle: a.ExamTitle,
		}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "%", Max: 100}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
	)

	labels := make([]string, 0, len(a.QuestionAnalytics))
	items := make([]opts.BarData, 0, len(a.QuestionAnalytics))
	for _, q := range a.QuestionAnalytics {
		labels = append(labels, q.Label)
		items = append(items, opts.BarData{Value: math.Round(q.Accuracy*10) / 10, Name: string(q.Difficulty)})
	}
	bar.SetXAxis(labels).AddSeries("Accuracy", items)
	return bar
}

// RenderAnalytics writes an HTML page with both analytics charts.
func RenderAnalytics(w io.Writer, a analytics.ExamAnalytics) error {
	page := components.NewPage()
	page.PageTitle = "Analytics: " + a.ExamTitle
	page.AddCharts(DistributionChart(a), AccuracyChart(a))
	return page.Render(w)
}
