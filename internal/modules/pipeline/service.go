// Package pipeline runs the end-to-end scoring, optimization and reporting flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/decoupling"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/aristath/greenfin/internal/modules/portfolio"
	"github.com/aristath/greenfin/internal/modules/publishing"
	"github.com/aristath/greenfin/internal/modules/reporting"
	"github.com/aristath/greenfin/internal/modules/runs"
	"github.com/aristath/greenfin/internal/modules/scoring"
	"github.com/aristath/greenfin/internal/modules/simulation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRunInProgress is returned when a run is requested while another is executing
var ErrRunInProgress = errors.New("pipeline run already in progress")

// PortfolioLoader provides the asset universe of a run
type PortfolioLoader interface {
	Load(ctx context.Context) (*portfolio.LoadResult, error)
}

// Outcome is the result of one pipeline run
type Outcome struct {
	RunID         string                 `json:"run_id"`
	Source        domain.DataSource      `json:"source"`
	Scored        []domain.ScoredAsset   `json:"-"`
	Summary       *reporting.Summary     `json:"summary"`
	Comparison    *decoupling.Comparison `json:"comparison"`
	Artifacts     []reporting.Artifact   `json:"-"`
	PublishedKeys []string               `json:"published_keys,omitempty"`
	Duration      time.Duration          `json:"duration_ns"`
}

// Service wires the pipeline stages
type Service struct {
	loader       PortfolioLoader
	calculator   *scoring.Calculator
	generator    *simulation.Generator
	estimator    *optimization.ReturnsEstimator
	comparer     *decoupling.Service
	reports      *reporting.Service
	runRepo      *runs.Repository      // Optional
	publisher    *publishing.Publisher // Optional
	excludedTier domain.Tier
	mu           sync.Mutex
	log          zerolog.Logger
}

// Deps are the pipeline collaborators. RunRepo and Publisher may be nil.
type Deps struct {
	Loader     PortfolioLoader
	Calculator *scoring.Calculator
	Generator  *simulation.Generator
	Estimator  *optimization.ReturnsEstimator
	Comparer   *decoupling.Service
	Reports    *reporting.Service
	RunRepo    *runs.Repository
	Publisher  *publishing.Publisher
}

// NewService creates a new pipeline service that excludes the divestment tier
func NewService(deps Deps, log zerolog.Logger) *Service {
	return &Service{
		loader:       deps.Loader,
		calculator:   deps.Calculator,
		generator:    deps.Generator,
		estimator:    deps.Estimator,
		comparer:     deps.Comparer,
		reports:      deps.Reports,
		runRepo:      deps.RunRepo,
		publisher:    deps.Publisher,
		excludedTier: domain.TierDivestment,
		log:          log.With().Str("service", "pipeline").Logger(),
	}
}

// Run executes one full pipeline pass. Only one run executes at a time.
func (s *Service) Run(ctx context.Context) (*Outcome, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	started := time.Now()

	loaded, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	scored := s.calculator.Score(loaded.Assets)
	if len(scored) == 0 {
		return nil, optimization.ErrEmptyUniverse
	}

	ids := make([]string, len(scored))
	esg := make([]float64, len(scored))
	for i, a := range scored {
		ids[i] = a.LoanID
		esg[i] = a.ESGScore
	}

	returns, err := s.generator.Generate(ids, esg)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate returns: %w", err)
	}

	inputs, err := s.estimator.Estimate(returns)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate optimizer inputs: %w", err)
	}

	_, dropped := scoring.Partition(scored, s.excludedTier)
	excludedIDs := make([]string, len(dropped))
	for i, d := range dropped {
		excludedIDs[i] = d.LoanID
	}

	comparison, err := s.comparer.Compare(ctx, inputs, s.excludedTier, excludedIDs)
	if err != nil {
		return nil, err
	}

	finished := time.Now()
	runID := uuid.New().String()
	if s.runRepo != nil {
		runID, err = s.runRepo.Create(ctx, runs.NewRun(comparison, loaded.Source, started, finished), scored)
		if err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	report := reporting.NewReport(scored, loaded.Source, comparison, finished)
	report.RunID = runID
	artifacts, err := s.reports.Write(report)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		RunID:      runID,
		Source:     loaded.Source,
		Scored:     scored,
		Summary:    report.Summary,
		Comparison: comparison,
		Artifacts:  artifacts,
	}

	if s.publisher != nil {
		keys, err := s.publisher.Publish(ctx, runID, artifacts)
		if err != nil {
			// The run is already recorded; a failed upload does not undo it
			s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to publish report")
		}
		outcome.PublishedKeys = keys
	}

	outcome.Duration = time.Since(started)
	s.log.Info().
		Str("run_id", runID).
		Str("source", string(loaded.Source)).
		Int("assets", len(scored)).
		Int("excluded", len(excludedIDs)).
		Str("verdict", string(comparison.Verdict)).
		Dur("duration", outcome.Duration).
		Msg("Pipeline run complete")

	return outcome, nil
}
