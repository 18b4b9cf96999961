// Package ingestion loads the raw CSV inputs into the staging database.
package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aristath/greenfin/internal/database"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
)

// Raw input file names
const (
	LoansFile           = "loan_portfolio.csv"
	FinancialsFile      = "company_financials.csv"
	ESGScoresFile       = "esg_scores.csv"
	EmissionFactorsFile = "emission_factors.csv"
)

// ErrRawDataMissing is returned when a raw input file does not exist
var ErrRawDataMissing = errors.New("raw data file missing")

// Summary reports the row counts written per table
type Summary struct {
	Loans           int `json:"loans"`
	Financials      int `json:"financials"`
	ESGScores       int `json:"esg_scores"`
	EmissionFactors int `json:"emission_factors"`
}

// Service ingests raw CSV files
type Service struct {
	db     *database.DB
	rawDir string
	log    zerolog.Logger
}

// NewService creates a new ingestion service
func NewService(db *database.DB, rawDir string, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		rawDir: rawDir,
		log:    log.With().Str("service", "ingestion").Logger(),
	}
}

// ReadRaw parses the four raw files from dir
func ReadRaw(dir string) (*RawData, error) {
	data := &RawData{}
	if err := readCSV(dir, LoansFile, &data.Loans); err != nil {
		return nil, err
	}
	if err := readCSV(dir, FinancialsFile, &data.Financials); err != nil {
		return nil, err
	}
	if err := readCSV(dir, ESGScoresFile, &data.ESGScores); err != nil {
		return nil, err
	}
	if err := readCSV(dir, EmissionFactorsFile, &data.EmissionFactors); err != nil {
		return nil, err
	}
	return data, nil
}

func readCSV(dir, name string, out interface{}) error {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRawDataMissing, path)
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Ingest reads the raw files and replaces the raw tables in a single transaction.
func (s *Service) Ingest(ctx context.Context) (*Summary, error) {
	data, err := ReadRaw(s.rawDir)
	if err != nil {
		return nil, err
	}

	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		return replaceRawTables(ctx, tx, data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store raw data: %w", err)
	}

	summary := &Summary{
		Loans:           len(data.Loans),
		Financials:      len(data.Financials),
		ESGScores:       len(data.ESGScores),
		EmissionFactors: len(data.EmissionFactors),
	}

	s.log.Info().
		Str("raw_dir", s.rawDir).
		Int("loans", summary.Loans).
		Int("financials", summary.Financials).
		Int("esg_scores", summary.ESGScores).
		Int("emission_factors", summary.EmissionFactors).
		Msg("Raw data ingested")

	return summary, nil
}

func replaceRawTables(ctx context.Context, tx *sql.Tx, data *RawData) error {
	for _, table := range []string{"raw_loans", "raw_financials", "raw_esg_scores", "raw_emission_factors"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// Duplicate keys keep the last row, as a keyed replace would
	for _, r := range data.Loans {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO raw_loans (loan_id, borrower_name, sector, outstanding_amount_mn) VALUES (?, ?, ?, ?)`,
			r.LoanID, r.BorrowerName, nullString(r.Sector), r.OutstandingAmountMn)
		if err != nil {
			return fmt.Errorf("failed to insert loan %s: %w", r.LoanID, err)
		}
	}
	for _, r := range data.Financials {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO raw_financials (borrower_name, revenue_mn, enterprise_value_mn, reported_ghg_emissions_tco2e) VALUES (?, ?, ?, ?)`,
			r.BorrowerName, r.RevenueMn, r.EnterpriseValueMn, r.ReportedEmissions)
		if err != nil {
			return fmt.Errorf("failed to insert financials for %s: %w", r.BorrowerName, err)
		}
	}
	for _, r := range data.ESGScores {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO raw_esg_scores (borrower_name, esg_score, governance_risk) VALUES (?, ?, ?)`,
			r.BorrowerName, r.ESGScore, r.GovernanceRisk)
		if err != nil {
			return fmt.Errorf("failed to insert ESG score for %s: %w", r.BorrowerName, err)
		}
	}
	for _, r := range data.EmissionFactors {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO raw_emission_factors (sector, emissions_intensity) VALUES (?, ?)`,
			r.Sector, r.EmissionsIntensity)
		if err != nil {
			return fmt.Errorf("failed to insert emission factor for %s: %w", r.Sector, err)
		}
	}
	return nil
}

// LoadRaw reads the raw tables back from the staging database
func (s *Service) LoadRaw(ctx context.Context) (*RawData, error) {
	data := &RawData{}

	rows, err := s.db.QueryContext(ctx, `SELECT loan_id, borrower_name, sector, outstanding_amount_mn FROM raw_loans ORDER BY loan_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw_loans: %w", err)
	}
	for rows.Next() {
		var r LoanRow
		var sector sql.NullString
		if err := rows.Scan(&r.LoanID, &r.BorrowerName, &sector, &r.OutstandingAmountMn); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan raw loan: %w", err)
		}
		r.Sector = sector.String
		data.Loans = append(data.Loans, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT borrower_name, revenue_mn, enterprise_value_mn, reported_ghg_emissions_tco2e FROM raw_financials`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw_financials: %w", err)
	}
	for rows.Next() {
		var r FinancialRow
		if err := rows.Scan(&r.BorrowerName, &r.RevenueMn, &r.EnterpriseValueMn, &r.ReportedEmissions); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan raw financials: %w", err)
		}
		data.Financials = append(data.Financials, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT borrower_name, esg_score, governance_risk FROM raw_esg_scores`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw_esg_scores: %w", err)
	}
	for rows.Next() {
		var r ESGRow
		if err := rows.Scan(&r.BorrowerName, &r.ESGScore, &r.GovernanceRisk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan raw ESG score: %w", err)
		}
		data.ESGScores = append(data.ESGScores, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT sector, emissions_intensity FROM raw_emission_factors`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw_emission_factors: %w", err)
	}
	for rows.Next() {
		var r EmissionFactorRow
		if err := rows.Scan(&r.Sector, &r.EmissionsIntensity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan raw emission factor: %w", err)
		}
		data.EmissionFactors = append(data.EmissionFactors, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	return data, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return rows.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
