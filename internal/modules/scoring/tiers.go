package scoring

import "github.com/aristath/greenfin/internal/domain"

// Classify maps a score to its tier using the default 80/60/40 boundaries.
func Classify(score float64) domain.Tier {
	return DefaultThresholds().Classify(score)
}

// Classify maps a score to exactly one tier. Lower bounds are inclusive.
// NaN compares false against every bound and falls through to Divestment.
func (t Thresholds) Classify(score float64) domain.Tier {
	switch {
	case score >= t.Leader:
		return domain.TierLeader
	case score >= t.Aligned:
		return domain.TierAligned
	case score >= t.Watchlist:
		return domain.TierWatchlist
	default:
		return domain.TierDivestment
	}
}
