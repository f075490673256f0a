package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/duplicates"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/extract"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	repo "github.com/joseph-ayodele/invoice-extractor/internal/repository"
	"github.com/joseph-ayodele/invoice-extractor/internal/server"
)

func main() {
	fs := ff.NewFlagSet("invoiced")
	var (
		configPath = fs.StringLong("config", "", "YAML config file overlaying the environment")
		addr       = fs.StringLong("addr", "", "listen address (defaults to server.grpc_addr)")
		root       = fs.StringLong("root", "", "only serve documents below this directory")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("INVOICED")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
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
	if *addr != "" {
		cfg.Server.GRPCAddr = *addr
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	store, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Error("opening store failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.HealthCheck(ctx, 3*time.Second); err != nil {
		logger.Error("DB health failed", "error", err)
		os.Exit(1)
	}
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
	svc := server.NewExtractionServer(
		orch,
		duplicates.New(store.Invoices(), policy, logger),
		export.NewService(store.Invoices(), logger),
		server.Config{Root: *root},
		logger,
	)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.LoggingInterceptor(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_SERVING)
	// Reflection for grpcurl
	reflection.Register(grpcServer)
	server.RegisterExtractionService(grpcServer, svc)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	logger.Info("gRPC serving", "addr", lis.Addr().String())

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(lis) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		hs.Shutdown()
		grpcServer.GracefulStop()
	case err := <-serveErr:
		logger.Error("grpc serve failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
