package di

import (
	"github.com/aristath/greenfin/internal/config"
	"github.com/aristath/greenfin/internal/reliability"
	"github.com/aristath/greenfin/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	// Integrity check and WAL checkpoint, hourly
	databaseHealthSchedule = "0 0 * * * *"
	// Run history retention and VACUUM, Sundays at 03:00
	maintenanceSchedule = "0 0 3 * * 0"
	// Off-site backup, daily at 02:00
	backupSchedule = "0 0 2 * * *"
)

// RegisterJobs adds the background jobs to sched. The backup job needs
// publishing, the pipeline job needs a configured schedule.
func RegisterJobs(sched *scheduler.Scheduler, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if err := sched.AddJob(databaseHealthSchedule, scheduler.NewDatabaseHealthJob(log, container.StagingDB, container.AnalyticsDB)); err != nil {
		return err
	}

	maintenance := reliability.NewMaintenanceJob(container.RunRepo, cfg.RunRetention, log, container.StagingDB, container.AnalyticsDB)
	if err := sched.AddJob(maintenanceSchedule, maintenance); err != nil {
		return err
	}

	if container.BackupService != nil {
		if err := sched.AddJob(backupSchedule, reliability.NewBackupJob(container.BackupService, log)); err != nil {
			return err
		}
	}

	if cfg.PipelineSchedule == "" {
		log.Info().Msg("No pipeline schedule configured, runs are on demand only")
		return nil
	}

	return sched.AddJob(cfg.PipelineSchedule, scheduler.NewPipelineJob(container.PipelineService, 0, log))
}
