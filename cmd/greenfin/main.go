// Package main is the entry point of GreenFin, the ESG scoring and decoupling
// analysis tool for loan portfolios.
//
// Subcommands run the pipeline stages individually (ingest, etl, analyze,
// optimize), all of them in order (run), or serve the HTTP API with an optional
// cron schedule (serve).
package main

import (
	"os"

	"github.com/aristath/greenfin/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The configured logger may not exist if config loading failed
		log := logger.New(logger.Config{Level: "info", Pretty: true})
		log.Error().Err(err).Msg("greenfin failed")
		os.Exit(1)
	}
}
