package scheduler

import (
	"database/sql"
	"fmt"

	"github.com/aristath/greenfin/internal/database"
	"github.com/rs/zerolog"
)

// walWarnFrames is the WAL size above which a checkpoint lag is reported
const walWarnFrames = 1000

// DatabaseHealthJob runs an integrity check and a passive WAL checkpoint on each database
type DatabaseHealthJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewDatabaseHealthJob creates a new DatabaseHealthJob. Nil databases are skipped.
func NewDatabaseHealthJob(log zerolog.Logger, databases ...*database.DB) *DatabaseHealthJob {
	return &DatabaseHealthJob{
		log:       log.With().Str("job", "database_health").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *DatabaseHealthJob) Name() string {
	return "database_health"
}

// Run checks every database and fails on the first corrupted one
func (j *DatabaseHealthJob) Run() error {
	checked := 0
	for _, db := range j.databases {
		if db == nil {
			continue
		}

		if err := checkIntegrity(db.Conn()); err != nil {
			// Corruption cannot be repaired automatically
			j.log.Error().
				Err(err).
				Str("database", db.Name()).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s is corrupted: %w", db.Name(), err)
		}

		j.checkpoint(db)
		checked++
	}

	j.log.Info().Int("checked", checked).Msg("Database health check completed")
	return nil
}

func checkIntegrity(conn *sql.DB) error {
	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}

// checkpoint is best effort; failures are logged only
func (j *DatabaseHealthJob) checkpoint(db *database.DB) {
	// Columns: busy, log frames, checkpointed frames
	var busy, frames, checkpointed int
	err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to checkpoint WAL")
		return
	}

	event := j.log.Debug()
	if frames > walWarnFrames {
		event = j.log.Warn()
	}
	event.
		Str("database", db.Name()).
		Int("wal_frames", frames).
		Int("checkpointed", checkpointed).
		Msg("WAL checkpoint")
}
