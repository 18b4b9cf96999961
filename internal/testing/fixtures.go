package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/greenfin/internal/domain"
)

// NewAssetFixtures returns five loans spanning every tier under the default weights
func NewAssetFixtures() []domain.Asset {
	return []domain.Asset{
		{LoanID: "L001", BorrowerName: "Alder Renewables", Sector: "Energy", OutstandingAmountMn: 120, RevenueMn: 800, EnterpriseValueMn: 1500, ReportedEmissions: 4000, ESGScore: 92, GovernanceRisk: 1, EmissionsIntensity: 15, DebtToEVRatio: 0.08},
		{LoanID: "L002", BorrowerName: "Birch Software", Sector: "Tech", OutstandingAmountMn: 80, RevenueMn: 450, EnterpriseValueMn: 2200, ReportedEmissions: 900, ESGScore: 74, GovernanceRisk: 2, EmissionsIntensity: 8, DebtToEVRatio: 0.036},
		{LoanID: "L003", BorrowerName: "Cedar Estates", Sector: "Real Estate", OutstandingAmountMn: 200, RevenueMn: 300, EnterpriseValueMn: 900, ReportedEmissions: 12000, ESGScore: 58, GovernanceRisk: 3, EmissionsIntensity: 60, DebtToEVRatio: 0.22},
		{LoanID: "L004", BorrowerName: "Dogwood Metals", Sector: "Manufacturing", OutstandingAmountMn: 150, RevenueMn: 600, EnterpriseValueMn: 1100, ReportedEmissions: 52000, ESGScore: 41, GovernanceRisk: 4, EmissionsIntensity: 140, DebtToEVRatio: 0.14},
		{LoanID: "L005", BorrowerName: "Elm Coal", Sector: "Energy", OutstandingAmountMn: 260, RevenueMn: 700, EnterpriseValueMn: 1000, ReportedMissing: true, ESGScore: 22, GovernanceRisk: 5, EmissionsIntensity: 410, DebtToEVRatio: 0.26},
	}
}

// Raw CSV fixtures in the layout of the ingestion directory.
// Borrower "Fir Logistics" has no financials and no ESG row; Cedar has no reported emissions.
const (
	RawLoansCSV = `Loan_ID,Borrower_Name,Sector,Outstanding_Amount_Mn
L001,Alder Renewables,Energy,120
L002,Birch Software,Tech,80
L003,Cedar Estates,Real Estate,200
L004,Fir Logistics,Manufacturing,
`
	RawFinancialsCSV = `Borrower_Name,Revenue_Mn,Enterprise_Value_Mn,Reported_GHG_Emissions_tCO2e
Alder Renewables,800,1600,4000
Birch Software,400,2000,900
Cedar Estates,300,1000,
`
	RawESGScoresCSV = `Borrower_Name,ESG_Score_0_100,Governance_Risk_1_5
Alder Renewables,90,1
Birch Software,70,2
Cedar Estates,40,4
`
	RawEmissionFactorsCSV = `Sector,Emissions_Intensity_tCO2e_per_M_Rev
Energy,350
Tech,20
Real Estate,90
Manufacturing,180
`
)

// WriteRawFixtures writes the raw CSV fixtures into a new temp directory and returns it
func WriteRawFixtures(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"loan_portfolio.csv":     RawLoansCSV,
		"company_financials.csv": RawFinancialsCSV,
		"esg_scores.csv":         RawESGScoresCSV,
		"emission_factors.csv":   RawEmissionFactorsCSV,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write fixture %s: %v", name, err)
		}
	}
	return dir
}
