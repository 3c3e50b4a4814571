package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mdwindow/internal/api"
	"mdwindow/internal/config"
	"mdwindow/internal/live"
	"mdwindow/internal/metrics"
	"mdwindow/internal/store"
	"mdwindow/internal/util"
)

func main() {
	// Load config.
	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging: stdout, plus a dated file when logging.dir is set.
	w, logFile, err := util.OpenLogFile(cfg.Logging.Dir, "mdwindow-server", time.Now())
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	logger.Info("config loaded", "path", cfgPath, "dataDir", cfg.Storage.DataDir)

	// Provision the product/dataset folders.
	if n := store.InitFolders(cfg.Storage.DataDir, logger); n > 0 {
		logger.Info("provisioned data folders", "created", n)
	}

	var audit store.AuditLog
	if cfg.Storage.AuditDB != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.Storage.AuditDB)
		if err != nil {
			log.Fatalf("opening audit database: %v", err)
		}
		defer sqlStore.Close()
		audit = sqlStore
	}

	var liveClient *live.Client
	if cfg.HasAlpaca() {
		liveClient = live.NewClient(cfg.Alpaca, logger)
		logger.Info("live market data enabled", "feed", cfg.Alpaca.Feed)
	} else {
		logger.Warn("alpaca credentials not set, live endpoints will return unavailable")
	}

	source := store.NewCSVSource()
	svc := api.NewService(api.Deps{
		Root:   cfg.Storage.DataDir,
		Source: source,
		Estimator: store.NewEstimator(
			cfg.Estimator.MinuteBytesPerRow,
			cfg.Estimator.TickBytesPerRow,
			source,
			logger,
		),
		Live:    liveClient,
		Audit:   audit,
		Metrics: metrics.New(),
		Log:     logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := api.NewServer(cfg.Server, svc, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("mdwindow server stopped")
}
