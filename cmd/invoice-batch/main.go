package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/joseph-ayodele/invoice-extractor/internal/async"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/duplicates"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/extract"
	"github.com/joseph-ayodele/invoice-extractor/internal/ingest"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	repo "github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	fs := ff.NewFlagSet("invoice-batch")
	var (
		configPath    = fs.StringLong("config", "", "YAML config file overlaying the environment")
		dir           = fs.StringLong("dir", "", "directory to process invoices from (required)")
		out           = fs.StringLong("out", "", "review XLSX path (defaults to invoices-review.xlsx next to --dir)")
		inmem         = fs.BoolLong("inmem", "use an in-memory SQLite database")
		watch         = fs.BoolLong("watch", "keep running and process PDFs added to --dir")
		includeHidden = fs.BoolLong("include-hidden", "also read hidden files and directories")
		workers       = fs.IntLong("workers", 0, "parallel documents (0 keeps the configured value)")
		debounce      = fs.DurationLong("debounce", 2*time.Second, "quiet period before a watched file is processed")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("INVOICE")); err != nil {
		printError("%s\n", ffhelp.Flags(fs))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		printError("error: %v\n", err)
		os.Exit(2)
	}
	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(2)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "invoices-review.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := common.LoadConfigFile(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(2)
	}
	if *inmem {
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = "file:invoices?mode=memory&cache=shared"
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	store, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
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

	policy, err := duplicates.PolicyByName(cfg.Duplicates.Policy)
	if err != nil {
		logger.Error("invalid duplicate policy", "error", err)
		os.Exit(2)
	}
	detector := duplicates.New(store.Invoices(), policy, logger)
	processor := pipeline.NewProcessor(orch, store.Runs(), store.Invoices(), detector, orch.Defaults(), logger)
	queueOpts := []async.Option{
		async.WithWorkers(cfg.Batch.Workers),
		async.WithProcessTimeout(orch.Defaults().Timeout + 30*time.Second),
	}

	ingestor := ingest.NewFSIngestor(logger)
	logger.Info("starting ingestion", "dir", *dir)
	ingested, stats, err := ingestor.IngestDirectory(ctx, *dir, !*includeHidden)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}
	jobs := ingest.Jobs(ingested)
	logger.Info("ingestion complete",
		"files", len(jobs),
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)

	var sum summary
	for _, r := range async.RunBatch(ctx, processor, jobs, logger, queueOpts...) {
		sum.add(r)
	}

	if *watch && ctx.Err() == nil {
		if err := watchDir(ctx, *dir, !*includeHidden, *debounce, ingestor, processor, &sum, queueOpts, logger); err != nil {
			logger.Error("watch failed", "error", err)
		}
	}

	sum.mu.Lock()
	defer sum.mu.Unlock()
	xlsx, err := export.NewService(store.Invoices(), logger).ExportResultsXLSX(sum.results)
	if err != nil {
		logger.Error("failed to build review export", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"succeeded", sum.succeeded,
		"failed", sum.failed,
		"needs_review", sum.review,
		"duplicates", sum.duplicates,
		"skipped", sum.skipped,
		"output_file", *out,
	)
	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents extracted: %d\n", sum.succeeded)
	fmt.Printf("- Failures: %d\n", sum.failed)
	fmt.Printf("- Needs review: %d\n", sum.review)
	fmt.Printf("- Possible duplicates: %d\n", sum.duplicates)
	fmt.Printf("- Output: %s\n", *out)
	if sum.failed > 0 {
		os.Exit(1)
	}
}

// watchDir feeds PDFs that appear under dir into a queue until ctx ends.
func watchDir(
	ctx context.Context,
	dir string,
	skipHidden bool,
	debounce time.Duration,
	ingestor *ingest.FSIngestor,
	processor async.FileProcessor,
	sum *summary,
	opts []async.Option,
	logger *slog.Logger,
) error {
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:      []string{dir},
		Debounce:   debounce,
		SkipHidden: skipHidden,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler := func(_ context.Context, r async.Result) { sum.add(r) }
	q := async.NewBatchQueue(ctx, processor, logger, append(opts, async.WithHandler(handler))...)
	logger.Info("watching for new invoices", "dir", dir)

	for events != nil || errs != nil {
		select {
		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r, err := ingestor.IngestPath(ctx, path)
			if err != nil {
				logger.Warn("watch.ingest_failed", "path", path, "error", err)
				continue
			}
			if r.DuplicateOf != "" {
				continue
			}
			if err := q.Enqueue(ctx, async.Job{Path: r.SourcePath, FileHash: r.HashHex}); err != nil {
				logger.Warn("watch.enqueue_failed", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watch.error", "error", err)
		}
	}

	// ctx is done; give in-flight documents a bounded grace period
	drain, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	q.Shutdown(drain)
	return nil
}

type summary struct {
	mu         sync.Mutex
	results    []*entity.ExtractionResult
	succeeded  int
	failed     int
	review     int
	duplicates int
	skipped    int
}

func (s *summary) add(r async.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.Skipped:
		s.skipped++
		return
	case r.Outcome.Result == nil:
		s.failed++
		return
	}
	s.results = append(s.results, r.Outcome.Result)
	if r.Err != nil || !r.Outcome.Result.Success {
		s.failed++
		return
	}
	s.succeeded++
	if r.Outcome.Record != nil && r.Outcome.Record.NeedsReview {
		s.review++
	}
	if d := r.Outcome.Duplicate; d != nil && d.HasDuplicates {
		s.duplicates++
	}
}
