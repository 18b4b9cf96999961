package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/greenfin/internal/domain"
)

func asset(id string, esg, gov, emissions float64) domain.Asset {
	return domain.Asset{
		LoanID:              id,
		BorrowerName:        "Borrower " + id,
		Sector:              "Energy",
		OutstandingAmountMn: 100,
		ESGScore:            esg,
		GovernanceRisk:      gov,
		EmissionsIntensity:  emissions,
	}
}

func TestCalculator_ThreeAssetScenario(t *testing.T) {
	assets := []domain.Asset{
		asset("L1", 90, 1, 10),
		asset("L2", 70, 1, 50),
		asset("L3", 30, 5, 200),
	}

	scored := NewDefaultCalculator().Score(assets)
	require.Len(t, scored, 3)

	// Sorted highest first
	assert.Equal(t, "L1", scored[0].LoanID)
	assert.Equal(t, "L2", scored[1].LoanID)
	assert.Equal(t, "L3", scored[2].LoanID)

	assert.InDelta(t, 85.0, scored[0].Score, 1e-9)
	assert.InDelta(t, 65.0, scored[1].Score, 1e-9)
	assert.InDelta(t, 15.0, scored[2].Score, 1e-9)

	assert.Equal(t, domain.TierLeader, scored[0].Tier)
	assert.Equal(t, domain.TierAligned, scored[1].Tier)
	assert.Equal(t, domain.TierDivestment, scored[2].Tier)
}

func TestCalculator_Normalization(t *testing.T) {
	assert.InDelta(t, 0.9, NormalizeESG(90), 1e-12)
	assert.InDelta(t, 1.0, NormalizeGovernance(1), 1e-12)
	assert.InDelta(t, 0.5, NormalizeGovernance(3), 1e-12)
	assert.InDelta(t, 0.0, NormalizeGovernance(5), 1e-12)
}

func TestNormalizeEmissions_ClipsOutliers(t *testing.T) {
	// 20 assets, one extreme outlier. After clipping the outlier still ranks last,
	// and lower intensities always map to higher normalized values.
	intensities := make([]float64, 20)
	for i := range intensities {
		intensities[i] = float64(i + 1)
	}
	intensities[19] = 1e6

	norm := NormalizeEmissions(intensities)
	require.Len(t, norm, 20)
	for i := 1; i < len(norm); i++ {
		assert.Less(t, norm[i], norm[i-1])
	}
	assert.InDelta(t, 0.0, norm[19], 1e-12)
	assert.InDelta(t, 1-1.0/20, norm[0], 1e-12)
}

func TestNormalizeEmissions_TiesShareRank(t *testing.T) {
	norm := NormalizeEmissions([]float64{5, 5, 1})
	assert.InDelta(t, norm[0], norm[1], 1e-12)
	assert.Greater(t, norm[2], norm[0])
}

func TestCalculator_SingleAsset(t *testing.T) {
	scored := NewDefaultCalculator().Score([]domain.Asset{asset("L1", 80, 1, 12)})
	require.Len(t, scored, 1)

	// The sole asset has percentile 1.0, so its emissions component is 0
	assert.InDelta(t, 0.0, scored[0].EmissionNorm, 1e-12)
	assert.InDelta(t, 60.0, scored[0].Score, 1e-9)
}

func TestCalculator_EmptyPopulation(t *testing.T) {
	assert.Empty(t, NewDefaultCalculator().Score(nil))
}

func TestCalculator_MonotonicInESG(t *testing.T) {
	calc := NewDefaultCalculator()
	base := []domain.Asset{
		asset("L1", 50, 3, 40),
		asset("L2", 60, 2, 20),
		asset("L3", 40, 4, 80),
	}

	prev := -1.0
	for esg := 0.0; esg <= 100; esg += 10 {
		assets := append([]domain.Asset(nil), base...)
		assets[0].ESGScore = esg
		score := scoreOf(t, calc.Score(assets), "L1")
		assert.GreaterOrEqual(t, score, prev, "esg=%v", esg)
		prev = score
	}
}

func TestCalculator_MonotonicInGovernance(t *testing.T) {
	calc := NewDefaultCalculator()
	base := []domain.Asset{
		asset("L1", 50, 3, 40),
		asset("L2", 60, 2, 20),
		asset("L3", 40, 4, 80),
	}

	prev := -1.0
	// Risk decreasing from 5 (worst) to 1 (best) must never lower the score
	for risk := 5.0; risk >= 1; risk-- {
		assets := append([]domain.Asset(nil), base...)
		assets[0].GovernanceRisk = risk
		score := scoreOf(t, calc.Score(assets), "L1")
		assert.GreaterOrEqual(t, score, prev, "risk=%v", risk)
		prev = score
	}
}

func TestCalculator_RecomputesWithPopulation(t *testing.T) {
	calc := NewDefaultCalculator()
	a := asset("L1", 50, 3, 40)

	alone := scoreOf(t, calc.Score([]domain.Asset{a}), "L1")
	withDirtier := scoreOf(t, calc.Score([]domain.Asset{a, asset("L2", 50, 3, 400)}), "L1")

	// Adding a dirtier borrower improves L1's emissions percentile
	assert.Greater(t, withDirtier, alone)
}

func TestCalculator_CustomWeights(t *testing.T) {
	calc := NewCalculator(Weights{ESG: 1}, DefaultThresholds())
	scored := calc.Score([]domain.Asset{asset("L1", 73, 5, 1000)})
	assert.InDelta(t, 73.0, scored[0].Score, 1e-9)
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.Error(t, Weights{ESG: 0.5, Governance: 0.5, Emissions: 0.5}.Validate())
	assert.Error(t, Weights{ESG: 1.2, Governance: -0.2}.Validate())
}

func TestPartition(t *testing.T) {
	scored := NewDefaultCalculator().Score([]domain.Asset{
		asset("L1", 90, 1, 10),
		asset("L2", 70, 1, 50),
		asset("L3", 30, 5, 200),
	})

	kept, dropped := Partition(scored, domain.TierDivestment)
	require.Len(t, kept, 2)
	require.Len(t, dropped, 1)
	assert.Equal(t, "L3", dropped[0].LoanID)
}

func scoreOf(t *testing.T, scored []domain.ScoredAsset, loanID string) float64 {
	t.Helper()
	for _, s := range scored {
		if s.LoanID == loanID {
			return s.Score
		}
	}
	t.Fatalf("loan %s not scored", loanID)
	return 0
}
