package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/greenfin/internal/config"
	"github.com/aristath/greenfin/internal/di"
	"github.com/aristath/greenfin/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// rootFlags override the environment configuration
type rootFlags struct {
	logLevel       string
	pretty         bool
	pipelineConfig string
	seed           uint64
}

// app is the state shared by every subcommand after PersistentPreRunE
type app struct {
	flags rootFlags
	cfg   *config.Config
	log   zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "greenfin",
		Short:         "GreenFin: ESG scoring, risk tiering and decoupled portfolio optimization",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug|info|warn|error (default LOG_LEVEL)")
	cmd.PersistentFlags().BoolVar(&a.flags.pretty, "pretty", false, "Human-readable console logs")
	cmd.PersistentFlags().StringVar(&a.flags.pipelineConfig, "config", "", "Pipeline YAML with scoring weights and tier thresholds (default PIPELINE_CONFIG)")
	cmd.PersistentFlags().Uint64Var(&a.flags.seed, "seed", 0, "Simulation seed (default SIMULATION_SEED)")

	cmd.AddCommand(
		newIngestCmd(a),
		newETLCmd(a),
		newAnalyzeCmd(a),
		newOptimizeCmd(a),
		newRunCmd(a),
		newServeCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "greenfin %s\n", version)
			},
		},
	)

	return cmd
}

// setup loads configuration, applies flag overrides and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if flags.Changed("pretty") {
		cfg.LogPretty = a.flags.pretty
	}
	if flags.Changed("seed") {
		cfg.SimulationSeed = a.flags.seed
	}
	if flags.Changed("config") {
		pipelineCfg, err := config.LoadPipelineConfig(a.flags.pipelineConfig)
		if err != nil {
			return err
		}
		cfg.Pipeline = pipelineCfg
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(a.log)

	return nil
}

// wire builds the dependency container; the caller must Close it
func (a *app) wire(ctx context.Context) (*di.Container, error) {
	return di.Wire(ctx, a.cfg, a.log)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
