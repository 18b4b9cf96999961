package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Output file names inside the report directory
const (
	ReportFile = "esg_analysis_report.md"
	ChartFile  = "exposure_by_risk_tier.json"
)

// Artifact is a file written by the service
type Artifact struct {
	Name        string
	Path        string
	ContentType string
}

// Service writes reports to disk
type Service struct {
	reportDir string
	log       zerolog.Logger
}

// NewService creates a new reporting service
func NewService(reportDir string, log zerolog.Logger) *Service {
	return &Service{
		reportDir: reportDir,
		log:       log.With().Str("service", "reporting").Logger(),
	}
}

// Write saves the markdown report and the chart series
func (s *Service) Write(report *Report) ([]Artifact, error) {
	if err := os.MkdirAll(s.reportDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	reportPath := filepath.Join(s.reportDir, ReportFile)
	if err := os.WriteFile(reportPath, []byte(report.Markdown()), 0644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	chart, err := json.MarshalIndent(BuildChart(report.Summary), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode chart series: %w", err)
	}
	chartPath := filepath.Join(s.reportDir, ChartFile)
	if err := os.WriteFile(chartPath, chart, 0644); err != nil {
		return nil, fmt.Errorf("failed to write chart series: %w", err)
	}

	s.log.Info().
		Str("report", reportPath).
		Str("chart", chartPath).
		Int("tiers", len(report.Summary.Tiers)).
		Msg("Report written")

	return []Artifact{
		{Name: ReportFile, Path: reportPath, ContentType: "text/markdown; charset=utf-8"},
		{Name: ChartFile, Path: chartPath, ContentType: "application/json"},
	}, nil
}
