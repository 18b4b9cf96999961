package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/greenfin/internal/modules/pipeline"
	"github.com/rs/zerolog"
)

// PipelineRunner executes one pipeline pass
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.Outcome, error)
}

// PipelineJob re-runs scoring, optimization and reporting on a schedule
type PipelineJob struct {
	runner  PipelineRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewPipelineJob creates a new PipelineJob. A zero timeout means no deadline.
func NewPipelineJob(runner PipelineRunner, timeout time.Duration, log zerolog.Logger) *PipelineJob {
	return &PipelineJob{
		runner:  runner,
		timeout: timeout,
		log:     log.With().Str("job", "pipeline").Logger(),
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "greenfin_pipeline"
}

// Run executes the pipeline. A run already in progress is skipped, not failed.
func (j *PipelineJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	outcome, err := j.runner.Run(ctx)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		j.log.Warn().Msg("Pipeline already running, skipping scheduled run")
		return nil
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", outcome.RunID).
		Str("verdict", string(outcome.Comparison.Verdict)).
		Msg("Scheduled pipeline run finished")
	return nil
}
