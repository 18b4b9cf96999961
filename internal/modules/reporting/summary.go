// Package reporting builds the tier exposure summary, the markdown report and
// the exposure chart series.
package reporting

import (
	"github.com/aristath/greenfin/internal/domain"
	"github.com/shopspring/decimal"
)

// TierSummary aggregates one risk tier
type TierSummary struct {
	Tier          domain.Tier     `json:"tier"`
	Label         string          `json:"label"`
	TotalExposure decimal.Decimal `json:"total_exposure_mn"`
	Count         int             `json:"count"`
	AvgScore      float64         `json:"avg_score"`
	ExposurePct   float64         `json:"exposure_pct"`
}

// Summary is the portfolio exposure by tier, ordered A to D.
// Tiers without loans are omitted.
type Summary struct {
	TotalExposure decimal.Decimal `json:"total_exposure_mn"`
	LoanCount     int             `json:"loan_count"`
	Tiers         []TierSummary   `json:"tiers"`
}

// Summarize groups scored assets by tier. Exposures are summed as decimals so the
// tier totals add up to the portfolio total exactly.
func Summarize(scored []domain.ScoredAsset) *Summary {
	type acc struct {
		exposure decimal.Decimal
		count    int
		scoreSum float64
	}
	byTier := make(map[domain.Tier]*acc, len(domain.AllTiers))
	total := decimal.Zero

	for _, s := range scored {
		amount := decimal.NewFromFloat(s.OutstandingAmountMn)
		total = total.Add(amount)

		a, ok := byTier[s.Tier]
		if !ok {
			a = &acc{exposure: decimal.Zero}
			byTier[s.Tier] = a
		}
		a.exposure = a.exposure.Add(amount)
		a.count++
		a.scoreSum += s.Score
	}

	summary := &Summary{TotalExposure: total, LoanCount: len(scored)}
	for _, tier := range domain.AllTiers {
		a, ok := byTier[tier]
		if !ok {
			continue
		}
		ts := TierSummary{
			Tier:          tier,
			Label:         tier.Label(),
			TotalExposure: a.exposure,
			Count:         a.count,
			AvgScore:      a.scoreSum / float64(a.count),
		}
		if !total.IsZero() {
			ts.ExposurePct = a.exposure.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		summary.Tiers = append(summary.Tiers, ts)
	}
	return summary
}

// Tier returns the summary row for tier, or nil when the tier has no loans
func (s *Summary) Tier(tier domain.Tier) *TierSummary {
	for i := range s.Tiers {
		if s.Tiers[i].Tier == tier {
			return &s.Tiers[i]
		}
	}
	return nil
}

// TopLoans returns up to n Tier-A loans in score order, or the n best loans
// overall when no loan is Tier A. fallback reports the second case.
func TopLoans(scored []domain.ScoredAsset, n int) (loans []domain.ScoredAsset, fallback bool) {
	for _, s := range scored {
		if s.Tier == domain.TierLeader {
			loans = append(loans, s)
			if len(loans) == n {
				break
			}
		}
	}
	if len(loans) > 0 {
		return loans, false
	}
	return head(scored, n), true
}

// BottomLoans returns the last n Tier-D loans in score order, or the n worst loans
// overall when no loan is Tier D.
func BottomLoans(scored []domain.ScoredAsset, n int) (loans []domain.ScoredAsset, fallback bool) {
	var tierD []domain.ScoredAsset
	for _, s := range scored {
		if s.Tier == domain.TierDivestment {
			tierD = append(tierD, s)
		}
	}
	if len(tierD) > 0 {
		return tail(tierD, n), false
	}
	return tail(scored, n), true
}

func head(scored []domain.ScoredAsset, n int) []domain.ScoredAsset {
	if len(scored) < n {
		n = len(scored)
	}
	return append([]domain.ScoredAsset(nil), scored[:n]...)
}

func tail(scored []domain.ScoredAsset, n int) []domain.ScoredAsset {
	if len(scored) < n {
		n = len(scored)
	}
	return append([]domain.ScoredAsset(nil), scored[len(scored)-n:]...)
}
