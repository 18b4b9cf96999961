// Package domain provides core domain models and types.
package domain

// Tier is the ordered risk classification derived from the Green Finance Score.
// A is the best tier, D the worst.
type Tier string

const (
	TierLeader     Tier = "A"
	TierAligned    Tier = "B"
	TierWatchlist  Tier = "C"
	TierDivestment Tier = "D"
)

// AllTiers lists tiers from best to worst
var AllTiers = []Tier{TierLeader, TierAligned, TierWatchlist, TierDivestment}

// Label returns the report label for the tier
func (t Tier) Label() string {
	switch t {
	case TierLeader:
		return "A: Leader (Low Risk)"
	case TierAligned:
		return "B: Aligned (Moderate Risk)"
	case TierWatchlist:
		return "C: Watchlist (High Risk)"
	case TierDivestment:
		return "D: Divestment (Very High Risk)"
	default:
		return string(t)
	}
}

// Rank returns the tier position, 0 for A through 3 for D (-1 if unknown)
func (t Tier) Rank() int {
	for i, tier := range AllTiers {
		if tier == t {
			return i
		}
	}
	return -1
}

// DataSource records where a run's asset universe came from
type DataSource string

const (
	DataSourceFile      DataSource = "file"
	DataSourceDatabase  DataSource = "database"
	DataSourceSynthetic DataSource = "synthetic"
)

// Asset is one loan of the cleaned portfolio. Immutable for the duration of a run.
type Asset struct {
	LoanID              string  `json:"loan_id"`
	BorrowerName        string  `json:"borrower_name"`
	Sector              string  `json:"sector"`
	OutstandingAmountMn float64 `json:"outstanding_amount_mn"`
	RevenueMn           float64 `json:"revenue_mn"`
	EnterpriseValueMn   float64 `json:"enterprise_value_mn"`
	ReportedEmissions   float64 `json:"reported_ghg_emissions_tco2e"`
	ReportedMissing     bool    `json:"reported_missing"`
	ESGScore            float64 `json:"esg_score"`       // 0-100
	GovernanceRisk      float64 `json:"governance_risk"` // 1-5
	EmissionsIntensity  float64 `json:"emissions_intensity"`
	DebtToEVRatio       float64 `json:"debt_to_ev_ratio"`
	EmissionsPerRevenue float64 `json:"emissions_per_revenue"`
}

// ScoredAsset is an asset with its Green Finance Score components and tier.
// Derived data; recomputed from the full population on every run.
type ScoredAsset struct {
	Asset
	ESGNorm        float64 `json:"esg_norm"`
	GovernanceNorm float64 `json:"governance_norm"`
	EmissionNorm   float64 `json:"emission_norm"`
	Score          float64 `json:"score"`
	Tier           Tier    `json:"tier"`
}
