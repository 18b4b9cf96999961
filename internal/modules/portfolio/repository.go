package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/greenfin/internal/database"
	"github.com/aristath/greenfin/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles the portfolio_clean table
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new cleaned portfolio repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio_clean").Logger(),
	}
}

// ReplaceAll swaps the table content for assets in one transaction
func (r *Repository) ReplaceAll(ctx context.Context, assets []domain.Asset, cleanedAt time.Time) error {
	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM portfolio_clean"); err != nil {
			return fmt.Errorf("failed to clear portfolio_clean: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO portfolio_clean (
			loan_id, borrower_name, sector, outstanding_amount_mn, revenue_mn,
			enterprise_value_mn, reported_ghg_emissions_tco2e, reported_missing_flag,
			esg_score, governance_risk, emissions_intensity, debt_to_ev_ratio,
			emissions_per_revenue, cleaned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range assets {
			missing := 0
			if a.ReportedMissing {
				missing = 1
			}
			_, err := stmt.ExecContext(ctx,
				a.LoanID, a.BorrowerName, a.Sector, a.OutstandingAmountMn, a.RevenueMn,
				a.EnterpriseValueMn, a.ReportedEmissions, missing,
				a.ESGScore, a.GovernanceRisk, a.EmissionsIntensity, a.DebtToEVRatio,
				a.EmissionsPerRevenue, cleanedAt.Unix(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert loan %s: %w", a.LoanID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Int("assets", len(assets)).Msg("Replaced cleaned portfolio")
	return nil
}

// GetAll returns the cleaned portfolio ordered by borrower name
func (r *Repository) GetAll(ctx context.Context) ([]domain.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT loan_id, borrower_name, sector, outstanding_amount_mn,
		revenue_mn, enterprise_value_mn, reported_ghg_emissions_tco2e, reported_missing_flag,
		esg_score, governance_risk, emissions_intensity, debt_to_ev_ratio, emissions_per_revenue
		FROM portfolio_clean ORDER BY borrower_name, loan_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio_clean: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var missing int
		if err := rows.Scan(
			&a.LoanID, &a.BorrowerName, &a.Sector, &a.OutstandingAmountMn,
			&a.RevenueMn, &a.EnterpriseValueMn, &a.ReportedEmissions, &missing,
			&a.ESGScore, &a.GovernanceRisk, &a.EmissionsIntensity, &a.DebtToEVRatio, &a.EmissionsPerRevenue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cleaned loan: %w", err)
		}
		a.ReportedMissing = missing == 1
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cleaned loans: %w", err)
	}
	return assets, nil
}

// Count returns the number of cleaned loans
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM portfolio_clean").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cleaned loans: %w", err)
	}
	return count, nil
}
