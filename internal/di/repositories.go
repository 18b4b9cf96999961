package di

import (
	"github.com/aristath/greenfin/internal/modules/portfolio"
	"github.com/aristath/greenfin/internal/modules/runs"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates repositories over the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.PortfolioRepo = portfolio.NewRepository(container.StagingDB, log)
	container.RunRepo = runs.NewRepository(container.AnalyticsDB, log)
}
