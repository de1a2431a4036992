package tui

import (
	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/sieve/internal/scan"
)

// scoreBuckets splits the 0-100 confidence range into columns of ten.
const scoreBuckets = 10

var chartStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("51"))

// scoreHistogram counts findings per ten-point score bucket. A score of 100
// falls in the last bucket.
func scoreHistogram(findings []scan.Finding) []float64 {
	counts := make([]float64, scoreBuckets)
	for _, f := range findings {
		b := f.Score / 10
		if b >= scoreBuckets {
			b = scoreBuckets - 1
		}
		if b < 0 {
			b = 0
		}
		counts[b]++
	}
	return counts
}

// scoreChart renders the score distribution as a one-row sparkline, low
// scores on the left. It is empty when there are no findings.
func scoreChart(findings []scan.Finding) string {
	if len(findings) == 0 {
		return ""
	}
	spark := sparkline.New(scoreBuckets, 1)
	spark.PushAll(scoreHistogram(findings))
	spark.Draw()
	return chartStyle.Render(spark.View())
}
