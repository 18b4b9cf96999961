// Package portfolio loads the cleaned loan portfolio used by scoring and optimization.
package portfolio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/pkg/formulas"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
)

// ErrMissingColumns is returned when the cleaned file lacks a required column
var ErrMissingColumns = errors.New("cleaned portfolio is missing required columns")

// Neutral values used when a column has no observed value to take the median of
const (
	neutralESGScore       = 50.0
	neutralGovernanceRisk = 3.0
	neutralIntensity      = 0.0
)

// LoadResult is the asset universe of one run and where it came from
type LoadResult struct {
	Assets []domain.Asset
	Source domain.DataSource
	Path   string // Set for file sources
}

// Service loads the cleaned portfolio with a synthetic fallback
type Service struct {
	repo       *Repository
	cleanedDir string
	synthetic  SyntheticConfig
	log        zerolog.Logger
}

// NewService creates a new portfolio service. repo may be nil to skip the database source.
func NewService(repo *Repository, cleanedDir string, synthetic SyntheticConfig, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		cleanedDir: cleanedDir,
		synthetic:  synthetic,
		log:        log.With().Str("service", "portfolio").Logger(),
	}
}

// Load returns the cleaned portfolio file when present, else the portfolio_clean
// table when it has rows, else the synthetic dataset.
func (s *Service) Load(ctx context.Context) (*LoadResult, error) {
	path := filepath.Join(s.cleanedDir, CleanFile)
	if _, err := os.Stat(path); err == nil {
		assets, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("path", path).Int("assets", len(assets)).Msg("Loaded cleaned portfolio file")
		return &LoadResult{Assets: assets, Source: domain.DataSourceFile, Path: path}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if s.repo != nil {
		count, err := s.repo.Count(ctx)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			assets, err := s.repo.GetAll(ctx)
			if err != nil {
				return nil, err
			}
			s.log.Info().Int("assets", len(assets)).Msg("Loaded cleaned portfolio from database")
			return &LoadResult{Assets: assets, Source: domain.DataSourceDatabase}, nil
		}
	}

	s.log.Warn().
		Str("path", path).
		Int("assets", s.synthetic.Count).
		Msg("Cleaned portfolio not found, using synthetic data")
	return &LoadResult{Assets: GenerateSynthetic(s.synthetic), Source: domain.DataSourceSynthetic}, nil
}

// LoadFile reads and prepares a cleaned portfolio CSV
func LoadFile(path string) ([]domain.Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := checkHeader(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
	}

	var records []Record
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return Prepare(records), nil
}

// checkHeader reports every required column absent from the header row
func checkHeader(r io.Reader) error {
	header, err := csv.NewReader(r).Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = true
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// Prepare imputes missing ESG score, governance risk and emissions intensity with
// the column median, then drops rows without an outstanding amount or sector.
func Prepare(records []Record) []domain.Asset {
	esg := make([]float64, 0, len(records))
	gov := make([]float64, 0, len(records))
	intensity := make([]float64, 0, len(records))
	for _, r := range records {
		if r.ESGScore.Valid {
			esg = append(esg, r.ESGScore.Float64)
		}
		if r.GovernanceRisk.Valid {
			gov = append(gov, r.GovernanceRisk.Float64)
		}
		if r.EmissionsIntensity.Valid {
			intensity = append(intensity, r.EmissionsIntensity.Float64)
		}
	}
	esgFill := medianOr(esg, neutralESGScore)
	govFill := medianOr(gov, neutralGovernanceRisk)
	intensityFill := medianOr(intensity, neutralIntensity)

	assets := make([]domain.Asset, 0, len(records))
	for _, r := range records {
		if !r.OutstandingAmountMn.Valid || strings.TrimSpace(r.Sector) == "" {
			continue
		}

		a := domain.Asset{
			LoanID:              r.LoanID,
			BorrowerName:        r.BorrowerName,
			Sector:              r.Sector,
			OutstandingAmountMn: r.OutstandingAmountMn.Float64,
			RevenueMn:           r.RevenueMn.Float64,
			EnterpriseValueMn:   r.EnterpriseValueMn.Float64,
			ReportedEmissions:   r.ReportedEmissions.Float64,
			ReportedMissing:     r.ReportedMissingFlag == 1,
			ESGScore:            esgFill,
			GovernanceRisk:      govFill,
			EmissionsIntensity:  intensityFill,
			DebtToEVRatio:       r.DebtToEVRatio.Float64,
			EmissionsPerRevenue: r.EmissionsPerRevenue.Float64,
		}
		if r.ESGScore.Valid {
			a.ESGScore = r.ESGScore.Float64
		}
		if r.GovernanceRisk.Valid {
			a.GovernanceRisk = r.GovernanceRisk.Float64
		}
		if r.EmissionsIntensity.Valid {
			a.EmissionsIntensity = r.EmissionsIntensity.Float64
		}
		assets = append(assets, a)
	}
	return assets
}

func medianOr(values []float64, fallback float64) float64 {
	if m, ok := formulas.Median(values); ok {
		return m
	}
	return fallback
}
