// Package di wires GreenFin's databases, repositories and services.
//
// Container is the single source of truth for service instances. Commands and
// the HTTP server take what they need from it.
package di

import (
	"github.com/aristath/greenfin/internal/database"
	"github.com/aristath/greenfin/internal/modules/decoupling"
	"github.com/aristath/greenfin/internal/modules/etl"
	"github.com/aristath/greenfin/internal/modules/ingestion"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/aristath/greenfin/internal/modules/pipeline"
	"github.com/aristath/greenfin/internal/modules/portfolio"
	"github.com/aristath/greenfin/internal/modules/publishing"
	"github.com/aristath/greenfin/internal/modules/reporting"
	"github.com/aristath/greenfin/internal/modules/runs"
	"github.com/aristath/greenfin/internal/modules/scoring"
	"github.com/aristath/greenfin/internal/modules/simulation"
	"github.com/aristath/greenfin/internal/reliability"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	StagingDB   *database.DB // Raw tables and portfolio_clean; rebuildable from CSV
	AnalyticsDB *database.DB // Run history and score snapshots

	// Repositories
	PortfolioRepo *portfolio.Repository
	RunRepo       *runs.Repository

	// Services
	IngestionService *ingestion.Service
	ETLService       *etl.Service
	PortfolioService *portfolio.Service
	Calculator       *scoring.Calculator
	Generator        *simulation.Generator
	Estimator        *optimization.ReturnsEstimator
	Optimizer        *optimization.MVOptimizer
	Comparer         *decoupling.Service
	ReportService    *reporting.Service
	Publisher        *publishing.Publisher // Nil when publishing is disabled
	PipelineService  *pipeline.Service
	BackupService    *reliability.BackupService // Nil when publishing is disabled
}

// Close closes every open database
func (c *Container) Close() {
	for _, db := range []*database.DB{c.StagingDB, c.AnalyticsDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
