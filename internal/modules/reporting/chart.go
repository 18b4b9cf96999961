package reporting

import (
	"fmt"
	"sort"

	"github.com/aristath/greenfin/internal/domain"
)

// tierColors run from green (A) to red (D)
var tierColors = map[domain.Tier]string{
	domain.TierLeader:     "#5cb85c",
	domain.TierAligned:    "#5bc0de",
	domain.TierWatchlist:  "#f0ad4e",
	domain.TierDivestment: "#d9534f",
}

// ChartPoint is one bar of the exposure-by-tier chart
type ChartPoint struct {
	Tier        domain.Tier `json:"tier"`
	Label       string      `json:"label"`
	Exposure    float64     `json:"exposure_mn"`
	ExposurePct float64     `json:"exposure_pct"`
	AvgScore    float64     `json:"avg_score"`
	Color       string      `json:"color"`
	Annotation  string      `json:"annotation"` // e.g. "12.5%"
}

// ChartSeries is the exposure chart, worst average score first
type ChartSeries struct {
	Title  string       `json:"title"`
	XLabel string       `json:"x_label"`
	YLabel string       `json:"y_label"`
	Points []ChartPoint `json:"points"`
}

// BuildChart turns a tier summary into bars ordered by average score ascending
func BuildChart(summary *Summary) *ChartSeries {
	points := make([]ChartPoint, 0, len(summary.Tiers))
	for _, t := range summary.Tiers {
		color, ok := tierColors[t.Tier]
		if !ok {
			color = "#cccccc"
		}
		points = append(points, ChartPoint{
			Tier:        t.Tier,
			Label:       t.Label,
			Exposure:    t.TotalExposure.InexactFloat64(),
			ExposurePct: t.ExposurePct,
			AvgScore:    t.AvgScore,
			Color:       color,
			Annotation:  fmt.Sprintf("%.1f%%", t.ExposurePct),
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].AvgScore < points[j].AvgScore
	})

	return &ChartSeries{
		Title:  "Portfolio Exposure (Outstanding Amount) by ESG Risk Tier",
		XLabel: "ESG Risk Tier",
		YLabel: "Outstanding Amount (Mn $)",
		Points: points,
	}
}
