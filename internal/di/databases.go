package di

import (
	"fmt"

	"github.com/aristath/greenfin/internal/config"
	"github.com/aristath/greenfin/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// staging.db - raw CSV tables and the cleaned portfolio
	stagingDB, err := database.New(database.Config{
		Path:    cfg.StagingDBPath(),
		Profile: database.ProfileCache, // Rebuilt from raw files on every ingest
		Name:    database.NameStaging,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize staging database: %w", err)
	}
	container.StagingDB = stagingDB

	// analytics.db - optimization runs and scored asset snapshots
	analyticsDB, err := database.New(database.Config{
		Path:    cfg.AnalyticsDBPath(),
		Profile: database.ProfileLedger, // Run history is an audit trail
		Name:    database.NameAnalytics,
	})
	if err != nil {
		stagingDB.Close()
		return nil, fmt.Errorf("failed to initialize analytics database: %w", err)
	}
	container.AnalyticsDB = analyticsDB

	for _, db := range []*database.DB{stagingDB, analyticsDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().
		Str("staging", stagingDB.Path()).
		Str("analytics", analyticsDB.Path()).
		Msg("Databases initialized and schemas applied")

	return container, nil
}
