package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckserve/duckserve/internal/demo/seed"
	s3store "github.com/duckserve/duckserve/internal/storage/s3"
)

func main() {
	cfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var uploader seed.Uploader
	if cfg.Uploads() {
		store, err := s3store.New(s3store.Config{
			Endpoint:        cfg.Upload.Endpoint,
			Region:          cfg.Upload.Region,
			AccessKeyID:     cfg.Upload.AccessKeyID,
			SecretAccessKey: cfg.Upload.SecretAccessKey,
			UseSSL:          cfg.Upload.UseSSL,
			URLStyle:        cfg.Upload.URLStyle,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		uploader = store
	}

	service, err := seed.NewService(cfg, logger, nil, uploader)
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"seeder started",
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("format", cfg.Format),
		slog.Int("rows", cfg.Rows),
		slog.Bool("upload", cfg.Uploads()),
	)

	summary, err := service.Run(ctx)
	if err != nil {
		logger.Error("seeder failed", slog.Any("error", err))
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, summary.Page, "", "  "); err != nil {
		_, _ = fmt.Fprintln(os.Stdout, string(summary.Page))
		return
	}
	_, _ = fmt.Fprintln(os.Stdout, pretty.String())
}
