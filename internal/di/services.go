package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aristath/greenfin/internal/config"
	"github.com/aristath/greenfin/internal/modules/decoupling"
	"github.com/aristath/greenfin/internal/modules/etl"
	"github.com/aristath/greenfin/internal/modules/ingestion"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/aristath/greenfin/internal/modules/pipeline"
	"github.com/aristath/greenfin/internal/modules/portfolio"
	"github.com/aristath/greenfin/internal/modules/publishing"
	"github.com/aristath/greenfin/internal/modules/reporting"
	"github.com/aristath/greenfin/internal/modules/scoring"
	"github.com/aristath/greenfin/internal/modules/simulation"
	"github.com/aristath/greenfin/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices builds the services from configuration. Requires repositories.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	pipelineCfg := cfg.Pipeline
	if pipelineCfg == nil {
		pipelineCfg = config.DefaultPipelineConfig()
	}

	container.IngestionService = ingestion.NewService(container.StagingDB, cfg.RawDataDir, log)
	container.ETLService = etl.NewService(container.IngestionService, container.PortfolioRepo, cfg.CleanedDataDir, log)

	synthetic := portfolio.DefaultSyntheticConfig()
	synthetic.Seed = cfg.SimulationSeed
	container.PortfolioService = portfolio.NewService(container.PortfolioRepo, cfg.CleanedDataDir, synthetic, log)

	container.Calculator = scoring.NewCalculator(pipelineCfg.Weights, pipelineCfg.Thresholds)

	simCfg := simulation.DefaultConfig()
	simCfg.Seed = cfg.SimulationSeed
	simCfg.TradingDays = cfg.TradingDays
	simCfg.Days = 2 * cfg.TradingDays
	if pipelineCfg.SimulationDays > 0 {
		simCfg.Days = pipelineCfg.SimulationDays
	}
	container.Generator = simulation.NewGenerator(simCfg, log)

	optSettings := optimization.DefaultSettings()
	optSettings.RiskFreeRate = cfg.RiskFreeRate
	optSettings.TradingDays = cfg.TradingDays
	container.Estimator = optimization.NewReturnsEstimator(log)
	container.Optimizer = optimization.NewMVOptimizer(optSettings, log)
	container.Comparer = decoupling.NewService(container.Optimizer, log)

	container.ReportService = reporting.NewService(cfg.ReportDir, log)

	if cfg.Publishing.Enabled() {
		client, err := publishing.NewS3Client(ctx, cfg.Publishing)
		if err != nil {
			return fmt.Errorf("failed to create report storage client: %w", err)
		}
		container.Publisher = publishing.NewPublisher(client, cfg.Publishing.Prefix, log)
		container.BackupService = reliability.NewBackupService(client, cfg.Publishing.Prefix,
			filepath.Join(cfg.DataDir, "backup-staging"), log, container.StagingDB, container.AnalyticsDB)
		log.Info().
			Str("bucket", cfg.Publishing.Bucket).
			Str("prefix", cfg.Publishing.Prefix).
			Msg("Report publishing enabled")
	}

	container.PipelineService = pipeline.NewService(pipeline.Deps{
		Loader:     container.PortfolioService,
		Calculator: container.Calculator,
		Generator:  container.Generator,
		Estimator:  container.Estimator,
		Comparer:   container.Comparer,
		Reports:    container.ReportService,
		RunRepo:    container.RunRepo,
		Publisher:  container.Publisher,
	}, log)

	return nil
}
