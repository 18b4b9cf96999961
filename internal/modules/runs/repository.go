// Package runs stores the history of pipeline runs and their score snapshots.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/greenfin/internal/database"
	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/decoupling"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrRunNotFound is returned for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// PortfolioMetrics are the annualized figures of one optimized portfolio
type PortfolioMetrics struct {
	Return     float64 `json:"return"`
	Volatility float64 `json:"volatility"`
	Sharpe     float64 `json:"sharpe"`
}

// Weights holds both optimal allocations keyed by loan id
type Weights struct {
	Full      map[string]float64 `msgpack:"full" json:"full"`
	Decoupled map[string]float64 `msgpack:"decoupled" json:"decoupled"`
}

// Run is one recorded comparison
type Run struct {
	ID             string             `json:"id"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	Source         domain.DataSource  `json:"data_source"`
	AssetCount     int                `json:"asset_count"`
	ExcludedCount  int                `json:"excluded_count"`
	Full           PortfolioMetrics   `json:"full"`
	Decoupled      PortfolioMetrics   `json:"decoupled"`
	Verdict        decoupling.Verdict `json:"verdict"`
	ImprovementPct *float64           `json:"improvement_pct,omitempty"`
	Weights        Weights            `json:"weights"`
}

// NewRun builds a run record from a comparison
func NewRun(c *decoupling.Comparison, source domain.DataSource, startedAt, finishedAt time.Time) *Run {
	return &Run{
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		Source:         source,
		AssetCount:     len(c.Full.AssetIDs),
		ExcludedCount:  len(c.ExcludedIDs),
		Full:           PortfolioMetrics{Return: c.Full.AnnualReturn, Volatility: c.Full.AnnualVolatility, Sharpe: c.Full.Sharpe},
		Decoupled:      PortfolioMetrics{Return: c.Decoupled.AnnualReturn, Volatility: c.Decoupled.AnnualVolatility, Sharpe: c.Decoupled.Sharpe},
		Verdict:        c.Verdict,
		ImprovementPct: c.ImprovementPct,
		Weights: Weights{
			Full:      c.Full.WeightMap(),
			Decoupled: c.Decoupled.WeightMap(),
		},
	}
}

// Repository handles optimization_runs and scored_assets
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Create stores run and its score snapshot, assigning a new id
func (r *Repository) Create(ctx context.Context, run *Run, scored []domain.ScoredAsset) (string, error) {
	weights, err := msgpack.Marshal(&run.Weights)
	if err != nil {
		return "", fmt.Errorf("failed to encode weights: %w", err)
	}

	id := uuid.New().String()
	err = database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO optimization_runs
			(id, started_at, finished_at, data_source, asset_count, excluded_count,
			 full_return, full_volatility, full_sharpe,
			 decoupled_return, decoupled_volatility, decoupled_sharpe,
			 verdict, improvement_pct, weights)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id,
			run.StartedAt.Unix(),
			run.FinishedAt.Unix(),
			string(run.Source),
			run.AssetCount,
			run.ExcludedCount,
			run.Full.Return,
			run.Full.Volatility,
			run.Full.Sharpe,
			run.Decoupled.Return,
			run.Decoupled.Volatility,
			run.Decoupled.Sharpe,
			string(run.Verdict),
			nullFloat(run.ImprovementPct),
			weights,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scored_assets
			(run_id, loan_id, borrower_name, sector, outstanding_amount_mn,
			 esg_norm, governance_norm, emission_norm, score, tier)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare snapshot insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range scored {
			if _, err := stmt.ExecContext(ctx,
				id, s.LoanID, s.BorrowerName, s.Sector, s.OutstandingAmountMn,
				s.ESGNorm, s.GovernanceNorm, s.EmissionNorm, s.Score, string(s.Tier),
			); err != nil {
				return fmt.Errorf("failed to insert snapshot for %s: %w", s.LoanID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	run.ID = id
	r.log.Debug().Str("run_id", id).Int("scored", len(scored)).Msg("Run recorded")
	return id, nil
}

const runColumns = `id, started_at, finished_at, data_source, asset_count, excluded_count,
	full_return, full_volatility, full_sharpe,
	decoupled_return, decoupled_volatility, decoupled_sharpe,
	verdict, improvement_pct, weights`

// Get returns a run by id
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM optimization_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs, newest first
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM optimization_runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return result, nil
}

// Latest returns the most recent run, or ErrRunNotFound when none exists
func (r *Repository) Latest(ctx context.Context) (*Run, error) {
	runs, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return &runs[0], nil
}

// Scores returns the score snapshot of a run in score order
func (r *Repository) Scores(ctx context.Context, runID string) ([]domain.ScoredAsset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT loan_id, borrower_name, sector, outstanding_amount_mn,
		       esg_norm, governance_norm, emission_norm, score, tier
		FROM scored_assets WHERE run_id = ?
		ORDER BY score DESC, loan_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored assets: %w", err)
	}
	defer rows.Close()

	var scored []domain.ScoredAsset
	for rows.Next() {
		var s domain.ScoredAsset
		var tier string
		if err := rows.Scan(
			&s.LoanID, &s.BorrowerName, &s.Sector, &s.OutstandingAmountMn,
			&s.ESGNorm, &s.GovernanceNorm, &s.EmissionNorm, &s.Score, &tier,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scored asset: %w", err)
		}
		s.Tier = domain.Tier(tier)
		scored = append(scored, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scored assets: %w", err)
	}
	return scored, nil
}

// Prune deletes every run older than the newest keep runs, together with
// their score snapshots. It returns the number of runs removed.
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	const stale = `SELECT id FROM optimization_runs
		ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`

	var removed int64
	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM scored_assets WHERE run_id IN ("+stale+")", keep); err != nil {
			return fmt.Errorf("failed to prune snapshots: %w", err)
		}
		result, err := tx.ExecContext(ctx,
			"DELETE FROM optimization_runs WHERE id IN ("+stale+")", keep)
		if err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		r.log.Info().Int64("removed", removed).Int("kept", keep).Msg("Pruned run history")
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt, finishedAt int64
	var source, verdict string
	var improvement sql.NullFloat64
	var weights []byte

	err := row.Scan(
		&run.ID, &startedAt, &finishedAt, &source, &run.AssetCount, &run.ExcludedCount,
		&run.Full.Return, &run.Full.Volatility, &run.Full.Sharpe,
		&run.Decoupled.Return, &run.Decoupled.Volatility, &run.Decoupled.Sharpe,
		&verdict, &improvement, &weights,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.FinishedAt = time.Unix(finishedAt, 0).UTC()
	run.Source = domain.DataSource(source)
	run.Verdict = decoupling.Verdict(verdict)
	if improvement.Valid {
		v := improvement.Float64
		run.ImprovementPct = &v
	}
	if err := msgpack.Unmarshal(weights, &run.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights for run %s: %w", run.ID, err)
	}
	return &run, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
