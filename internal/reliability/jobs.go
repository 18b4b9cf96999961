package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/greenfin/internal/database"
	"github.com/rs/zerolog"
)

// RunPruner trims the run history
type RunPruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// MaintenanceJob prunes old runs and vacuums the databases
type MaintenanceJob struct {
	runs      RunPruner
	retention int
	databases []*database.DB
	timeout   time.Duration
	log       zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job keeping the newest retention runs
func NewMaintenanceJob(runs RunPruner, retention int, log zerolog.Logger, databases ...*database.DB) *MaintenanceJob {
	return &MaintenanceJob{
		runs:      runs,
		retention: retention,
		databases: databases,
		timeout:   10 * time.Minute,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run prunes the run history, then vacuums every database.
// A failed vacuum is logged and does not stop the others.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	startTime := time.Now()

	removed, err := j.runs.Prune(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("failed to prune run history: %w", err)
	}

	var reclaimed int64
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		freed, err := vacuumDatabase(ctx, db)
		if err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
			continue
		}
		reclaimed += freed
	}

	j.log.Info().
		Int64("runs_removed", removed).
		Float64("reclaimed_mb", float64(reclaimed)/1024/1024).
		Dur("duration", time.Since(startTime)).
		Msg("Database maintenance completed")

	return nil
}

// vacuumDatabase rebuilds db and returns the bytes reclaimed
func vacuumDatabase(ctx context.Context, db *database.DB) (int64, error) {
	before, err := databaseSize(ctx, db)
	if err != nil {
		return 0, err
	}
	if _, err := db.Conn().ExecContext(ctx, "VACUUM"); err != nil {
		return 0, fmt.Errorf("vacuum failed: %w", err)
	}
	after, err := databaseSize(ctx, db)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}

func databaseSize(ctx context.Context, db *database.DB) (int64, error) {
	var pageCount, pageSize int64
	if err := db.Conn().QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := db.Conn().QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to read page size: %w", err)
	}
	return pageCount * pageSize, nil
}

// BackupJob uploads a database backup on schedule
type BackupJob struct {
	service *BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates a scheduled wrapper around service
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		timeout: 15 * time.Minute,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "database_backup"
}

// Run creates and uploads one backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		j.log.Error().Err(err).Msg("Backup failed")
		return err
	}
	return nil
}
