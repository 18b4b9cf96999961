package ingestion

import (
	"database/sql"
	"math"
	"strconv"
	"strings"
)

// NullFloat is a CSV and SQL column that may be empty.
// Empty cells and NaN spellings unmarshal as invalid.
type NullFloat struct {
	sql.NullFloat64
}

// Float returns a valid NullFloat
func Float(v float64) NullFloat {
	return NullFloat{sql.NullFloat64{Float64: v, Valid: true}}
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller
func (n *NullFloat) UnmarshalCSV(value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "nan", "na", "null", "none":
		n.Float64, n.Valid = 0, false
		return nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(f) {
		n.Float64, n.Valid = 0, false
		return nil
	}
	n.Float64, n.Valid = f, true
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller
func (n NullFloat) MarshalCSV() (string, error) {
	if !n.Valid {
		return "", nil
	}
	return strconv.FormatFloat(n.Float64, 'f', -1, 64), nil
}

// Ptr returns nil when the value is missing
func (n NullFloat) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// LoanRow is one line of loan_portfolio.csv
type LoanRow struct {
	LoanID              string    `csv:"Loan_ID"`
	BorrowerName        string    `csv:"Borrower_Name"`
	Sector              string    `csv:"Sector"`
	OutstandingAmountMn NullFloat `csv:"Outstanding_Amount_Mn"`
}

// FinancialRow is one line of company_financials.csv
type FinancialRow struct {
	BorrowerName      string    `csv:"Borrower_Name"`
	RevenueMn         NullFloat `csv:"Revenue_Mn"`
	EnterpriseValueMn NullFloat `csv:"Enterprise_Value_Mn"`
	ReportedEmissions NullFloat `csv:"Reported_GHG_Emissions_tCO2e"`
}

// ESGRow is one line of esg_scores.csv
type ESGRow struct {
	BorrowerName   string    `csv:"Borrower_Name"`
	ESGScore       NullFloat `csv:"ESG_Score_0_100"`
	GovernanceRisk NullFloat `csv:"Governance_Risk_1_5"`
}

// EmissionFactorRow is one line of emission_factors.csv
type EmissionFactorRow struct {
	Sector             string    `csv:"Sector"`
	EmissionsIntensity NullFloat `csv:"Emissions_Intensity_tCO2e_per_M_Rev"`
}

// RawData is the full content of the raw input directory
type RawData struct {
	Loans           []LoanRow
	Financials      []FinancialRow
	ESGScores       []ESGRow
	EmissionFactors []EmissionFactorRow
}
