package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"stockhistory/internal/cli"
	"stockhistory/internal/config"
	"stockhistory/internal/csvstore"
	applog "stockhistory/internal/log"
	gsheet "stockhistory/internal/sheets/google"
	"stockhistory/internal/worker"
)

const defaultQueue = "stock_sheets_mirror"

func main() {
	if err := run(); err != nil {
		applog.Default().Error("stock-sheets-worker failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
}

func run() error {
	if err := cli.LoadEnvFile(); err != nil {
		return err
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting stock-sheets-worker")

	cfg, err := cli.LoadAndValidateConfig((*config.Config).ValidateSheets)
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	creds, err := gsheet.Credentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return err
	}
	sheetsClient, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, creds)
	if err != nil {
		return fmt.Errorf("initialize Google Sheets client: %w", err)
	}

	amqpClient, err := cli.OpenAMQP(cfg, defaultQueue, logger)
	if err != nil {
		return err
	}
	defer amqpClient.Close()

	store := csvstore.NewFileStore(cfg.DataDir, cfg.ValueFile, cfg.QuantityFile)
	mirror := worker.NewMirrorWorker(store, sheetsClient, cfg.GoogleValueSheet, cfg.GoogleQuantitySheet, logger)

	// Catch up on updates published while the worker was down.
	if exists, err := store.Exists(); err != nil {
		logger.Error("Snapshot files are unusable, waiting for the next update", applog.FieldError, err.Error())
	} else if !exists {
		logger.Info("No snapshot files yet, waiting for the first update")
	} else if _, err := mirror.Sync(ctx); err != nil {
		logger.Error("Startup mirror failed", applog.FieldOperation, applog.OpMirror, applog.FieldError, err.Error())
	}

	err = amqpClient.ConsumeSnapshotUpdates(ctx, mirror.HandleSnapshotUpdated)
	if errors.Is(err, context.Canceled) {
		logger.Info("Worker shutdown complete", applog.FieldOperation, applog.OpShutdown)
		return nil
	}
	return err
}
