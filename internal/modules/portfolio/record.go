package portfolio

import (
	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/ingestion"
)

// CleanFile is the cleaned portfolio written by ETL and read by the loader
const CleanFile = "portfolio_clean.csv"

// Record is one row of the cleaned portfolio file
type Record struct {
	LoanID              string              `csv:"Loan_ID"`
	BorrowerName        string              `csv:"Borrower_Name"`
	Sector              string              `csv:"Sector"`
	OutstandingAmountMn ingestion.NullFloat `csv:"Outstanding_Amount_Mn"`
	RevenueMn           ingestion.NullFloat `csv:"Revenue_Mn"`
	EnterpriseValueMn   ingestion.NullFloat `csv:"Enterprise_Value_Mn"`
	ReportedEmissions   ingestion.NullFloat `csv:"Reported_GHG_Emissions_tCO2e"`
	ReportedMissingFlag int                 `csv:"Reported_Missing_Flag"`
	ESGScore            ingestion.NullFloat `csv:"ESG_Score_0_100"`
	GovernanceRisk      ingestion.NullFloat `csv:"Governance_Risk_1_5"`
	EmissionsIntensity  ingestion.NullFloat `csv:"Emissions_Intensity_tCO2e_per_M_Rev"`
	DebtToEVRatio       ingestion.NullFloat `csv:"Debt_to_EV_Ratio"`
	EmissionsPerRevenue ingestion.NullFloat `csv:"Emissions_per_Revenue"`
}

// RequiredColumns must be present in the cleaned file header
var RequiredColumns = []string{
	"Loan_ID",
	"Borrower_Name",
	"Sector",
	"Outstanding_Amount_Mn",
	"ESG_Score_0_100",
}

// NewRecord converts an asset into a file row
func NewRecord(a domain.Asset) Record {
	flag := 0
	if a.ReportedMissing {
		flag = 1
	}
	return Record{
		LoanID:              a.LoanID,
		BorrowerName:        a.BorrowerName,
		Sector:              a.Sector,
		OutstandingAmountMn: ingestion.Float(a.OutstandingAmountMn),
		RevenueMn:           ingestion.Float(a.RevenueMn),
		EnterpriseValueMn:   ingestion.Float(a.EnterpriseValueMn),
		ReportedEmissions:   ingestion.Float(a.ReportedEmissions),
		ReportedMissingFlag: flag,
		ESGScore:            ingestion.Float(a.ESGScore),
		GovernanceRisk:      ingestion.Float(a.GovernanceRisk),
		EmissionsIntensity:  ingestion.Float(a.EmissionsIntensity),
		DebtToEVRatio:       ingestion.Float(a.DebtToEVRatio),
		EmissionsPerRevenue: ingestion.Float(a.EmissionsPerRevenue),
	}
}
