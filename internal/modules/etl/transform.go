// Package etl merges the raw tables into the cleaned loan portfolio.
package etl

import (
	"sort"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/ingestion"
	"github.com/aristath/greenfin/pkg/formulas"
)

// merged is one loan after the left joins, before imputation
type merged struct {
	loan       ingestion.LoanRow
	revenue    ingestion.NullFloat
	ev         ingestion.NullFloat
	emissions  ingestion.NullFloat
	esg        ingestion.NullFloat
	governance ingestion.NullFloat
	intensity  ingestion.NullFloat
}

// Transform builds the cleaned portfolio from raw data:
//   - left joins loans ← financials and ESG scores (by borrower) ← emission factors (by sector)
//   - missing reported emissions are flagged and set to 0
//   - remaining numeric gaps take the column median
//   - debt-to-EV and emissions-per-revenue are derived
//
// Output is sorted by borrower name.
func Transform(raw *ingestion.RawData) []domain.Asset {
	financials := make(map[string]ingestion.FinancialRow, len(raw.Financials))
	for _, f := range raw.Financials {
		financials[f.BorrowerName] = f
	}
	esgScores := make(map[string]ingestion.ESGRow, len(raw.ESGScores))
	for _, e := range raw.ESGScores {
		esgScores[e.BorrowerName] = e
	}
	factors := make(map[string]ingestion.EmissionFactorRow, len(raw.EmissionFactors))
	for _, f := range raw.EmissionFactors {
		factors[f.Sector] = f
	}

	rows := make([]merged, len(raw.Loans))
	for i, loan := range raw.Loans {
		fin := financials[loan.BorrowerName]
		esg := esgScores[loan.BorrowerName]
		factor := factors[loan.Sector]
		rows[i] = merged{
			loan:       loan,
			revenue:    fin.RevenueMn,
			ev:         fin.EnterpriseValueMn,
			emissions:  fin.ReportedEmissions,
			esg:        esg.ESGScore,
			governance: esg.GovernanceRisk,
			intensity:  factor.EmissionsIntensity,
		}
	}

	outstandingFill := columnMedian(rows, func(m merged) ingestion.NullFloat { return m.loan.OutstandingAmountMn })
	revenueFill := columnMedian(rows, func(m merged) ingestion.NullFloat { return m.revenue })
	evFill := columnMedian(rows, func(m merged) ingestion.NullFloat { return m.ev })
	esgFill := columnMedian(rows, func(m merged) ingestion.NullFloat { return m.esg })
	governanceFill := columnMedian(rows, func(m merged) ingestion.NullFloat { return m.governance })
	intensityFill := columnMedian(rows, func(m merged) ingestion.NullFloat { return m.intensity })

	assets := make([]domain.Asset, len(rows))
	for i, m := range rows {
		a := domain.Asset{
			LoanID:              m.loan.LoanID,
			BorrowerName:        m.loan.BorrowerName,
			Sector:              m.loan.Sector,
			OutstandingAmountMn: valueOr(m.loan.OutstandingAmountMn, outstandingFill),
			RevenueMn:           valueOr(m.revenue, revenueFill),
			EnterpriseValueMn:   valueOr(m.ev, evFill),
			ReportedEmissions:   valueOr(m.emissions, 0),
			ReportedMissing:     !m.emissions.Valid,
			ESGScore:            valueOr(m.esg, esgFill),
			GovernanceRisk:      valueOr(m.governance, governanceFill),
			EmissionsIntensity:  valueOr(m.intensity, intensityFill),
		}
		a.DebtToEVRatio = ratio(a.OutstandingAmountMn, a.EnterpriseValueMn)
		a.EmissionsPerRevenue = ratio(a.ReportedEmissions, a.RevenueMn)
		assets[i] = a
	}

	sort.SliceStable(assets, func(i, j int) bool {
		if assets[i].BorrowerName != assets[j].BorrowerName {
			return assets[i].BorrowerName < assets[j].BorrowerName
		}
		return assets[i].LoanID < assets[j].LoanID
	})
	return assets
}

// columnMedian is 0 when the column has no values at all
func columnMedian(rows []merged, get func(merged) ingestion.NullFloat) float64 {
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v := get(r); v.Valid {
			values = append(values, v.Float64)
		}
	}
	m, ok := formulas.Median(values)
	if !ok {
		return 0
	}
	return m
}

func valueOr(v ingestion.NullFloat, fill float64) float64 {
	if v.Valid {
		return v.Float64
	}
	return fill
}

// ratio is 0 for a zero denominator
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
