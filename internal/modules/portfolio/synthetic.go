package portfolio

import (
	"fmt"
	"math/rand/v2"

	"github.com/aristath/greenfin/internal/domain"
	"gonum.org/v1/gonum/stat/distuv"
)

// SyntheticSectors are the sectors drawn for fallback loans
var SyntheticSectors = []string{"Energy", "Tech", "Real Estate", "Manufacturing"}

// SyntheticConfig controls the fallback dataset
type SyntheticConfig struct {
	Count int
	Seed  uint64
}

// DefaultSyntheticConfig returns 100 loans with seed 42
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{Count: 100, Seed: 42}
}

// GenerateSynthetic builds a reproducible portfolio of L0..L{n-1} for demos and tests.
//   - ESG: integer in [20, 100)
//   - outstanding: uniform [10, 500) Mn
//   - governance risk: integer in [1, 5]
//   - emissions intensity: log-normal
func GenerateSynthetic(cfg SyntheticConfig) []domain.Asset {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	intensity := distuv.LogNormal{Mu: 4.0, Sigma: 1.0, Src: rng}
	leverage := distuv.Uniform{Min: 2, Max: 8, Src: rng}

	assets := make([]domain.Asset, cfg.Count)
	for i := range assets {
		outstanding := 10 + rng.Float64()*490
		ev := outstanding * leverage.Rand()
		assets[i] = domain.Asset{
			LoanID:              fmt.Sprintf("L%d", i),
			BorrowerName:        fmt.Sprintf("Borrower %d", i),
			Sector:              SyntheticSectors[rng.IntN(len(SyntheticSectors))],
			OutstandingAmountMn: outstanding,
			EnterpriseValueMn:   ev,
			ESGScore:            float64(20 + rng.IntN(80)),
			GovernanceRisk:      float64(1 + rng.IntN(5)),
			EmissionsIntensity:  intensity.Rand(),
			DebtToEVRatio:       outstanding / ev,
		}
	}
	return assets
}
