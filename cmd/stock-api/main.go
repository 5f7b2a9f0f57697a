package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"stockhistory/internal/cli"
	"stockhistory/internal/csvstore"
	apphttp "stockhistory/internal/http"
	applog "stockhistory/internal/log"
)

const (
	defaultQueue    = "stock_api_cache"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		applog.Default().Error("stock-api failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
}

func run() error {
	if err := cli.LoadEnvFile(); err != nil {
		return err
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	store := csvstore.NewFileStore(cfg.DataDir, cfg.ValueFile, cfg.QuantityFile)
	srv := apphttp.NewServer(":"+cfg.Port, store, cfg.CacheTTL, logger)

	client, err := cli.OpenAMQP(cfg, defaultQueue, logger)
	if err != nil {
		logger.Warn("Cache invalidation disabled, entries expire after the TTL",
			applog.FieldError, err.Error(),
			"ttl", cfg.CacheTTL)
	}
	if client != nil {
		defer client.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting stock API", "addr", srv.Addr, "data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down stock API", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if client != nil {
		g.Go(func() error {
			err := client.ConsumeSnapshotUpdates(gctx, srv.HandleSnapshotUpdated)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Snapshot update consumer stopped", applog.FieldError, err.Error())
			}
			return nil
		})
	}

	return g.Wait()
}
