package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckserve/duckserve/internal/api"
	"github.com/duckserve/duckserve/internal/catalog"
	"github.com/duckserve/duckserve/internal/compose"
	"github.com/duckserve/duckserve/internal/config"
	"github.com/duckserve/duckserve/internal/credentials"
	"github.com/duckserve/duckserve/internal/engine/duckdb"
	"github.com/duckserve/duckserve/internal/ids"
	"github.com/duckserve/duckserve/internal/jobs"
	"github.com/duckserve/duckserve/internal/observability"
	"github.com/duckserve/duckserve/internal/results"
	"github.com/duckserve/duckserve/internal/service"
	s3store "github.com/duckserve/duckserve/internal/storage/s3"
	"github.com/duckserve/duckserve/internal/tasks"
)

func main() {
	cfg, err := config.LoadFromEnv("duckserve-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	eng, err := duckdb.Open(duckdb.Config{
		DataDir:     cfg.Engine.DataDir,
		InMemory:    cfg.Engine.InMemory,
		MemoryLimit: cfg.Engine.MemoryLimit,
		Threads:     cfg.Engine.Threads,
	})
	if err != nil {
		logger.Error("failed to open engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = eng.Close() }()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	existing, err := eng.Relations(startupCtx, cfg.Engine.Catalog)
	cancelStartup()
	if err != nil {
		logger.Error("failed to attach catalog", slog.String("catalog", cfg.Engine.Catalog), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("catalog attached", slog.String("catalog", cfg.Engine.Catalog), slog.Int("existing_relations", len(existing)))

	ledger := tasks.NewLedger()
	registry := catalog.NewRegistry()
	idGenerator := ids.NewGenerator().WithTaken(func(id string) bool {
		if _, ok := existing[id]; ok {
			return true
		}
		return registry.Contains(id)
	})

	runner, err := jobs.NewRunner(ledger, logger, cfg.Jobs.MaxConcurrent)
	if err != nil {
		logger.Error("failed to initialize job runner", slog.Any("error", err))
		os.Exit(1)
	}

	workOptions := jobs.Options{
		Catalog: cfg.Engine.Catalog,
		ObjectStore: compose.ObjectStoreOptions{
			Endpoint: cfg.ObjectStore.Endpoint,
			UseSSL:   cfg.ObjectStore.UseSSL,
			URLStyle: cfg.ObjectStore.URLStyle,
		},
		EnvCredentials: credentials.Set{
			Region:          cfg.SourceCredentials.Region,
			AccessKeyID:     cfg.SourceCredentials.AccessKeyID,
			SecretAccessKey: cfg.SourceCredentials.SecretAccessKey,
			SessionToken:    cfg.SourceCredentials.SessionToken,
		},
	}
	if cfg.ObjectStore.Preflight {
		workOptions.Prober = s3store.NewProber(s3store.Config{
			Endpoint: cfg.ObjectStore.Endpoint,
			Region:   cfg.ObjectStore.Region,
			UseSSL:   cfg.ObjectStore.UseSSL,
			URLStyle: cfg.ObjectStore.URLStyle,
		})
	}
	work, err := jobs.NewWork(eng, registry, workOptions)
	if err != nil {
		logger.Error("failed to initialize job work", slog.Any("error", err))
		os.Exit(1)
	}

	svc, err := service.New(service.Dependencies{
		Logger:          logger,
		IDs:             idGenerator,
		Ledger:          ledger,
		Registry:        registry,
		Runner:          runner,
		Work:            work,
		Paginator:       results.NewPaginator(eng, cfg.Engine.Catalog),
		DefaultPageSize: cfg.Results.DefaultPageSize,
		MaxPageSize:     cfg.Results.MaxPageSize,
	})
	if err != nil {
		logger.Error("failed to initialize service", slog.Any("error", err))
		os.Exit(1)
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:  logger,
		Service: svc,
		Readiness: func(ctx context.Context) error {
			return eng.Ping(ctx, cfg.Engine.Catalog)
		},
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("catalog", cfg.Engine.Catalog))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Jobs.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		exitCode = 1
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", slog.Any("error", err))
		exitCode = 1
	}
	if exitCode != 0 {
		cancel()
		_ = eng.Close()
		os.Exit(exitCode)
	}
}
