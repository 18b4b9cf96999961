package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aristath/greenfin/internal/di"
	"github.com/aristath/greenfin/internal/modules/ingestion"
	"github.com/aristath/greenfin/internal/modules/pipeline"
	"github.com/aristath/greenfin/internal/modules/reporting"
	"github.com/aristath/greenfin/internal/scheduler"
	"github.com/aristath/greenfin/internal/server"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful HTTP shutdown
const shutdownTimeout = 30 * time.Second

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Load the raw CSV files into the staging database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				summary, err := c.IngestionService.Ingest(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d loans, %d financials, %d ESG scores, %d emission factors\n",
					summary.Loans, summary.Financials, summary.ESGScores, summary.EmissionFactors)
				return nil
			})
		},
	}
}

func newETLCmd(a *app) *cobra.Command {
	var ingest bool

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Merge, impute and engineer features into the cleaned portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				if ingest {
					if _, err := c.IngestionService.Ingest(ctx); err != nil {
						return err
					}
				}
				result, err := c.ETLService.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %d loans (%d missing emission reports) -> %s\n",
					result.Count, result.MissingReports, result.Path)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&ingest, "ingest", false, "Ingest the raw CSV files first")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Score and tier the portfolio and write the exposure report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				loaded, err := c.PortfolioService.Load(ctx)
				if err != nil {
					return err
				}
				scored := c.Calculator.Score(loaded.Assets)
				report := reporting.NewReport(scored, loaded.Source, nil, time.Now())

				artifacts, err := c.ReportService.Write(report)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Source: %s (%d loans)\n", loaded.Source, len(scored))
				printSummary(out, report.Summary)
				printArtifacts(out, artifacts)
				return nil
			})
		},
	}
}

func newOptimizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Score, optimize full and ex-Tier-D portfolios, report and record the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				outcome, err := c.PipelineService.Run(ctx)
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), outcome)
				return nil
			})
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run ingestion, ETL and the full analysis in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				_, err := c.IngestionService.Ingest(ctx)
				switch {
				case errors.Is(err, ingestion.ErrRawDataMissing):
					// Loading falls back to an existing cleaned file or synthetic data
					a.log.Warn().Err(err).Msg("Raw data incomplete, skipping ingestion and ETL")
				case err != nil:
					return err
				default:
					if _, err := c.ETLService.Run(ctx); err != nil {
						return err
					}
				}

				outcome, err := c.PipelineService.Run(ctx)
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), outcome)
				return nil
			})
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var port int
	var devMode bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}

			return a.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				sched := scheduler.New(a.log)
				if err := di.RegisterJobs(sched, c, a.cfg, a.log); err != nil {
					return fmt.Errorf("failed to register jobs: %w", err)
				}
				sched.Start()
				defer sched.Stop()

				srv := server.New(server.Config{
					Log:         a.log,
					Config:      a.cfg,
					StagingDB:   c.StagingDB,
					AnalyticsDB: c.AnalyticsDB,
					Runs:        c.RunRepo,
					Pipeline:    c.PipelineService,
					Calculator:  c.Calculator,
					Scheduler:   sched,
					DevMode:     devMode,
				})

				errCh := make(chan error, 1)
				go func() {
					if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
					close(errCh)
				}()

				select {
				case err := <-errCh:
					if err != nil {
						return fmt.Errorf("server failed: %w", err)
					}
				case <-ctx.Done():
					a.log.Info().Msg("Shutdown signal received")
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (default GO_PORT)")
	cmd.Flags().BoolVar(&devMode, "dev", false, "Disable response compression")
	return cmd
}

// withContainer wires dependencies for one command and closes them afterwards
func (a *app) withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *di.Container) error) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	container, err := a.wire(ctx)
	if err != nil {
		return err
	}
	defer container.Close()

	return fn(ctx, container)
}

func printSummary(w io.Writer, summary *reporting.Summary) {
	fmt.Fprintf(w, "Total exposure: %s Mn\n", summary.TotalExposure.StringFixed(2))
	for _, t := range summary.Tiers {
		fmt.Fprintf(w, "  %-28s %3d loans  %10s Mn  %6.2f%%  avg score %.2f\n",
			t.Label, t.Count, t.TotalExposure.StringFixed(2), t.ExposurePct, t.AvgScore)
	}
}

func printArtifacts(w io.Writer, artifacts []reporting.Artifact) {
	for _, a := range artifacts {
		fmt.Fprintf(w, "Wrote %s\n", a.Path)
	}
}

func printOutcome(w io.Writer, o *pipeline.Outcome) {
	fmt.Fprintf(w, "Run %s (source: %s, %d loans)\n", o.RunID, o.Source, len(o.Scored))
	printSummary(w, o.Summary)

	c := o.Comparison
	fmt.Fprintf(w, "Full portfolio:      return %.4f  volatility %.4f  Sharpe %.4f\n",
		c.Full.AnnualReturn, c.Full.AnnualVolatility, c.Full.Sharpe)
	fmt.Fprintf(w, "Decoupled portfolio: return %.4f  volatility %.4f  Sharpe %.4f (excluded %d Tier %s loans)\n",
		c.Decoupled.AnnualReturn, c.Decoupled.AnnualVolatility, c.Decoupled.Sharpe, len(c.ExcludedIDs), c.ExcludedTier)
	if c.ImprovementPct != nil {
		fmt.Fprintf(w, "Verdict: %s (%+.2f%% Sharpe)\n", c.Verdict, *c.ImprovementPct)
	} else {
		fmt.Fprintf(w, "Verdict: %s\n", c.Verdict)
	}

	printArtifacts(w, o.Artifacts)
	for _, key := range o.PublishedKeys {
		fmt.Fprintf(w, "Published %s\n", key)
	}
}
