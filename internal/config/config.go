// Package config collects runtime configuration for the service binaries.
// Flags win over environment variables so local runs can override a deployed
// default without editing the environment.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/importer"
)

// Config holds everything the binaries need at startup.
type Config struct {
	Port            string
	GCSBucket       string
	BigQueryProject string
	BigQueryDataset string
	ModelName       string
	RulesPath       string
	SweepInterval   time.Duration
	StuckTimeout    time.Duration
}

// Load parses flags and environment variables. It calls flag.Parse and must
// run once, before any other flag use.
func Load() Config {
	var cfg Config

	flag.StringVar(&cfg.Port, "port", envOr("PORT", "8080"), "HTTP server port")
	flag.StringVar(&cfg.GCSBucket, "bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for uploaded files (or set GCS_BUCKET env)")
	flag.StringVar(&cfg.BigQueryProject, "project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project for BigQuery (or set GOOGLE_CLOUD_PROJECT env)")
	flag.StringVar(&cfg.BigQueryDataset, "dataset", envOr("BQ_DATASET", "ledger"), "BigQuery dataset name")
	flag.StringVar(&cfg.ModelName, "model", envOr("GEMINI_MODEL", completion.DefaultModelName), "Gemini model name")
	flag.StringVar(&cfg.RulesPath, "rules", os.Getenv("RULES_PATH"), "Path to a merchant rules YAML file (built-in rules when empty)")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", importer.DefaultSweepInterval, "How often to sweep for stuck jobs")
	flag.DurationVar(&cfg.StuckTimeout, "stuck-timeout", importer.DefaultStuckTimeout, "How long a job may sit in PROCESSING before it is failed")
	flag.Parse()

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
