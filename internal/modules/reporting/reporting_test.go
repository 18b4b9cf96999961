package reporting

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/decoupling"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/aristath/greenfin/internal/modules/scoring"
	testingpkg "github.com/aristath/greenfin/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredFixtures() []domain.ScoredAsset {
	return scoring.NewDefaultCalculator().Score(testingpkg.NewAssetFixtures())
}

func scored(id string, tier domain.Tier, score, amount float64) domain.ScoredAsset {
	return domain.ScoredAsset{
		Asset: domain.Asset{LoanID: id, BorrowerName: "Borrower " + id, Sector: "Tech", OutstandingAmountMn: amount},
		Score: score,
		Tier:  tier,
	}
}

func TestSummarize(t *testing.T) {
	assets := []domain.ScoredAsset{
		scored("L1", domain.TierLeader, 90, 100.10),
		scored("L2", domain.TierLeader, 82, 50.20),
		scored("L3", domain.TierWatchlist, 45, 30.30),
		scored("L4", domain.TierDivestment, 20, 19.40),
	}

	summary := Summarize(assets)
	assert.True(t, decimal.RequireFromString("200.00").Equal(summary.TotalExposure))
	assert.Equal(t, 4, summary.LoanCount)

	// Tier B has no loans and is omitted
	require.Len(t, summary.Tiers, 3)
	assert.Equal(t, domain.TierLeader, summary.Tiers[0].Tier)
	assert.Equal(t, domain.TierWatchlist, summary.Tiers[1].Tier)
	assert.Equal(t, domain.TierDivestment, summary.Tiers[2].Tier)
	assert.Nil(t, summary.Tier(domain.TierAligned))

	a := summary.Tier(domain.TierLeader)
	require.NotNil(t, a)
	assert.Equal(t, 2, a.Count)
	assert.InDelta(t, 86.0, a.AvgScore, 1e-12)
	assert.True(t, decimal.RequireFromString("150.3").Equal(a.TotalExposure))
	assert.InDelta(t, 75.15, a.ExposurePct, 1e-9)
	assert.Equal(t, "A: Leader (Low Risk)", a.Label)

	pct := 0.0
	for _, tier := range summary.Tiers {
		pct += tier.ExposurePct
	}
	assert.InDelta(t, 100.0, pct, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil)
	assert.True(t, summary.TotalExposure.IsZero())
	assert.Empty(t, summary.Tiers)
}

func TestTopAndBottomLoans(t *testing.T) {
	assets := []domain.ScoredAsset{
		scored("L1", domain.TierLeader, 95, 10),
		scored("L2", domain.TierLeader, 85, 10),
		scored("L3", domain.TierAligned, 70, 10),
		scored("L4", domain.TierDivestment, 30, 10),
		scored("L5", domain.TierDivestment, 10, 10),
	}

	top, fallback := TopLoans(assets, 5)
	assert.False(t, fallback)
	require.Len(t, top, 2)
	assert.Equal(t, "L1", top[0].LoanID)

	bottom, fallback := BottomLoans(assets, 1)
	assert.False(t, fallback)
	require.Len(t, bottom, 1)
	assert.Equal(t, "L5", bottom[0].LoanID)

	noExtremes := assets[2:3]
	top, fallback = TopLoans(noExtremes, 5)
	assert.True(t, fallback)
	assert.Len(t, top, 1)
	bottom, fallback = BottomLoans(noExtremes, 5)
	assert.True(t, fallback)
	assert.Len(t, bottom, 1)
}

func TestBuildChart_OrderedByAverageScore(t *testing.T) {
	chart := BuildChart(Summarize(scoredFixtures()))
	require.NotEmpty(t, chart.Points)

	for i := 1; i < len(chart.Points); i++ {
		assert.LessOrEqual(t, chart.Points[i-1].AvgScore, chart.Points[i].AvgScore)
	}
	last := chart.Points[len(chart.Points)-1]
	assert.Equal(t, domain.TierLeader, last.Tier)
	assert.Equal(t, "#5cb85c", last.Color)
	assert.Regexp(t, `^\d+\.\d%$`, last.Annotation)
}

func TestReport_Markdown(t *testing.T) {
	full := &optimization.Result{AssetIDs: []string{"L1", "L2", "L3"}, AnnualReturn: 0.1, AnnualVolatility: 0.2, Sharpe: 0.35}
	dec := &optimization.Result{AssetIDs: []string{"L1", "L2"}, AnnualReturn: 0.11, AnnualVolatility: 0.18, Sharpe: 0.44}
	comparison := decoupling.Evaluate(full, dec)
	comparison.ExcludedTier = domain.TierDivestment
	comparison.ExcludedIDs = []string{"L3"}

	report := NewReport(scoredFixtures(), domain.DataSourceFile, comparison, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	report.RunID = "run-1"
	md := report.Markdown()

	assert.Contains(t, md, "Total Portfolio Exposure: 810.00 Million")
	assert.Contains(t, md, "| Risk Tier")
	assert.Contains(t, md, "A: Leader (Low Risk)")
	assert.Contains(t, md, "D: Divestment (Very High Risk)")
	assert.Contains(t, md, "Alder Renewables")
	assert.Contains(t, md, "Elm Coal")
	assert.Contains(t, md, "Verdict: PASS")
	assert.Contains(t, md, "Run: run-1")
	assert.NotContains(t, md, "showing top 5 overall")
}

func TestReport_MarkdownFailVerdict(t *testing.T) {
	full := &optimization.Result{AssetIDs: []string{"L1", "L2", "L3"}, Sharpe: 0.5}
	dec := &optimization.Result{AssetIDs: []string{"L1", "L2"}, Sharpe: 0.4}

	report := NewReport(scoredFixtures(), domain.DataSourceSynthetic, decoupling.Evaluate(full, dec), time.Now())
	md := report.Markdown()
	assert.Contains(t, md, "Verdict: FAIL")
	assert.NotContains(t, md, "improved the Sharpe ratio by")
}

func TestFormatThousands(t *testing.T) {
	assert.Equal(t, "1,234,567.89", formatThousands("1234567.89"))
	assert.Equal(t, "123.00", formatThousands("123.00"))
	assert.Equal(t, "-1,000", formatThousands("-1000"))
}

func TestService_Write(t *testing.T) {
	dir := t.TempDir()
	service := NewService(dir, zerolog.Nop())

	artifacts, err := service.Write(NewReport(scoredFixtures(), domain.DataSourceFile, nil, time.Now()))
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	md, err := os.ReadFile(artifacts[0].Path)
	require.NoError(t, err)
	assert.Contains(t, string(md), "Green Finance Portfolio Risk Summary")
	assert.NotContains(t, string(md), "Decoupling Analysis")

	raw, err := os.ReadFile(artifacts[1].Path)
	require.NoError(t, err)
	var chart ChartSeries
	require.NoError(t, json.Unmarshal(raw, &chart))
	assert.NotEmpty(t, chart.Points)
}
