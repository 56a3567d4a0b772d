package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/api/handlers"
	"github.com/dvloznov/ledger-import/internal/api/middleware"
	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/config"
	"github.com/dvloznov/ledger-import/internal/events"
	"github.com/dvloznov/ledger-import/internal/expense"
	"github.com/dvloznov/ledger-import/internal/filestore"
	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/normalize"
	"github.com/dvloznov/ledger-import/internal/store"
	bqstore "github.com/dvloznov/ledger-import/internal/store/bigquery"
	"github.com/dvloznov/ledger-import/internal/store/inmemory"
)

func main() {
	cfg := config.Load()
	log := logger.New("ledger-import-api")

	ctx := context.Background()

	// Repositories: BigQuery in production, in-memory for local runs.
	var repo store.Repository
	if cfg.BigQueryProject != "" {
		bq, err := bqstore.New(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery store")
		}
		defer bq.Close()
		repo = bq
	} else {
		log.Warn().Msg("No BigQuery project configured - using in-memory store")
		repo = inmemory.New()
	}

	var files filestore.Storage
	if cfg.GCSBucket != "" {
		gcs, err := filestore.NewGCSStorage(ctx, cfg.GCSBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS storage")
		}
		files = gcs
	} else {
		log.Warn().Msg("No GCS bucket configured - uploads are kept in memory")
		files = filestore.NewMemoryStorage()
	}

	caller, err := completion.NewGeminiCaller(ctx, cfg.ModelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	gen := completion.NewService(caller, log)

	rules := loadRules(cfg.RulesPath, log)
	bus := events.NewLogBus(log)
	mat := expense.NewMaterializer(repo, expense.NewRulesCatalog(rules), bus, log)
	svc := importer.New(repo, files, gen, rules, mat, bus, log)

	// Sweeper runs inside the API process; a dedicated worker binary exists
	// for deployments that separate the two.
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go svc.RunSweeper(sweepCtx, cfg.SweepInterval, cfg.StuckTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health)

	api := http.NewServeMux()
	handlers.NewImportsHandler(svc, log).Register(api)

	// Health stays outside Auth.
	mux.Handle("/api/", middleware.Auth(api))

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight parse jobs land before the process exits.
	svc.Wait()

	log.Info().Msg("Server exited")
}

func loadRules(path string, log zerolog.Logger) *normalize.Rules {
	if path == "" {
		return normalize.DefaultRules()
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open rules file")
	}
	defer f.Close()

	rules, err := normalize.LoadRules(f)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load rules file")
	}
	return rules
}
