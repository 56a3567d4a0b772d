// The worker binary runs the stuck-job sweeper on its own, for deployments
// where the API serves traffic and recovery runs out of band.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/ledger-import/internal/config"
	"github.com/dvloznov/ledger-import/internal/events"
	"github.com/dvloznov/ledger-import/internal/expense"
	"github.com/dvloznov/ledger-import/internal/filestore"
	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/normalize"
	bqstore "github.com/dvloznov/ledger-import/internal/store/bigquery"
)

func main() {
	cfg := config.Load()
	log := logger.New("ledger-import-worker")

	if cfg.BigQueryProject == "" {
		log.Fatal().Msg("The worker needs a BigQuery project; an in-memory store has nothing to sweep")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := bqstore.New(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer repo.Close()

	// The sweeper only reads and fails jobs, so the parsing dependencies
	// stay unconfigured here.
	rules := normalize.DefaultRules()
	bus := events.NewLogBus(log)
	mat := expense.NewMaterializer(repo, expense.NewRulesCatalog(rules), bus, log)
	svc := importer.New(repo, filestore.NewMemoryStorage(), nil, rules, mat, bus, log)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down worker...")
		cancel()
	}()

	log.Info().
		Dur("interval", cfg.SweepInterval).
		Dur("timeout", cfg.StuckTimeout).
		Msg("Starting stuck-job sweeper")

	svc.RunSweeper(ctx, cfg.SweepInterval, cfg.StuckTimeout)

	log.Info().Msg("Worker exited")
}
