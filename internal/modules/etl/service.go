package etl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/ingestion"
	"github.com/aristath/greenfin/internal/modules/portfolio"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
)

// RawSource provides the ingested raw tables
type RawSource interface {
	LoadRaw(ctx context.Context) (*ingestion.RawData, error)
}

// Result describes one ETL run
type Result struct {
	Assets         []domain.Asset `json:"-"`
	Count          int            `json:"count"`
	MissingReports int            `json:"missing_reports"`
	Path           string         `json:"path"`
}

// Service runs the cleaning job
type Service struct {
	source     RawSource
	repo       *portfolio.Repository
	cleanedDir string
	log        zerolog.Logger
}

// NewService creates a new ETL service
func NewService(source RawSource, repo *portfolio.Repository, cleanedDir string, log zerolog.Logger) *Service {
	return &Service{
		source:     source,
		repo:       repo,
		cleanedDir: cleanedDir,
		log:        log.With().Str("service", "etl").Logger(),
	}
}

// Run transforms the raw tables, stores portfolio_clean and writes the cleaned CSV
func (s *Service) Run(ctx context.Context) (*Result, error) {
	raw, err := s.source.LoadRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw data: %w", err)
	}

	assets := Transform(raw)

	if err := s.repo.ReplaceAll(ctx, assets, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to store cleaned portfolio: %w", err)
	}

	path := filepath.Join(s.cleanedDir, portfolio.CleanFile)
	if err := WriteCSV(path, assets); err != nil {
		return nil, err
	}

	result := &Result{Assets: assets, Count: len(assets), Path: path}
	for _, a := range assets {
		if a.ReportedMissing {
			result.MissingReports++
		}
	}

	s.log.Info().
		Int("loans", result.Count).
		Int("missing_reports", result.MissingReports).
		Str("path", path).
		Msg("Cleaned portfolio written")

	return result, nil
}

// WriteCSV writes assets in the cleaned file layout, replacing path atomically
func WriteCSV(path string, assets []domain.Asset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	records := make([]portfolio.Record, len(assets))
	for i, a := range assets {
		records[i] = portfolio.NewRecord(a)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".portfolio_clean_*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&records, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cleaned portfolio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move cleaned portfolio into place: %w", err)
	}
	return nil
}
