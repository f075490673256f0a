package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/duplicates"
	"github.com/joseph-ayodele/invoice-extractor/internal/extract"
	"github.com/joseph-ayodele/invoice-extractor/internal/ingest"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	repo "github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

func main() {
	fs := ff.NewFlagSet("invoice-extract")
	var (
		configPath = fs.StringLong("config", "", "YAML config file overlaying the environment")
		threshold  = fs.Float64Long("threshold", 0, "manual review threshold (0 keeps the configured value)")
		strict     = fs.BoolLong("strict", "report amount mismatches as errors")
		checkDups  = fs.BoolLong("check-duplicates", "compare the result with stored invoices")
		save       = fs.BoolLong("save", "store a successful result (implies --check-duplicates)")
		verbose    = fs.BoolLong("verbose", "debug logging")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("INVOICE")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	args := fs.GetArgs()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: invoice-extract [flags] <file.pdf>\n%s\n", ffhelp.Flags(fs))
		os.Exit(2)
	}
	path := args[0]

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// stdout carries the result
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := common.LoadConfigFile(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(2)
	}
	if *strict {
		cfg.Pipeline.Strict = true
	}
	if *threshold > 0 {
		cfg.Pipeline.ConfidenceThreshold = *threshold
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	extractor, err := extract.FromConfig(cfg.Extractor, logger)
	if err != nil {
		logger.Error("extractor setup failed", "error", err)
		os.Exit(2)
	}
	orch, cleanup, err := pipeline.Build(ctx, cfg, extractor, logger)
	if err != nil {
		logger.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var (
		runs     pipeline.RunStore
		records  pipeline.RecordStore
		detector *duplicates.Detector
	)
	if *checkDups || *save {
		store, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
		if err != nil {
			logger.Error("opening store failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		policy, err := duplicates.PolicyByName(cfg.Duplicates.Policy)
		if err != nil {
			logger.Error("invalid duplicate policy", "error", err)
			os.Exit(2)
		}
		detector = duplicates.New(store.Invoices(), policy, logger)
		if *save {
			runs, records = store.Runs(), store.Invoices()
		}
	}

	hash, _, err := ingest.HashFile(path)
	if err != nil {
		logger.Error("reading file failed", "path", path, "error", err)
		os.Exit(1)
	}

	proc := pipeline.NewProcessor(orch, runs, records, detector, orch.Defaults(), logger)
	out, err := proc.ProcessFile(ctx, path, hash)
	if err != nil {
		logger.Error("processing failed", "path", path, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("writing result failed", "error", err)
		os.Exit(1)
	}
	if !out.Result.Success {
		os.Exit(1)
	}
}
