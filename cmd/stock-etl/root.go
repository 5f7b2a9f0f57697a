package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"stockhistory/internal/cli"
	"stockhistory/internal/config"
	"stockhistory/internal/csvstore"
	applog "stockhistory/internal/log"
	"stockhistory/internal/services"
)

// app carries what every subcommand needs once the root pre-run has loaded it.
type app struct {
	cfg    *config.Config
	logger *applog.Logger
}

func (a *app) snapshotStore() *csvstore.FileStore {
	return csvstore.NewFileStore(a.cfg.DataDir, a.cfg.ValueFile, a.cfg.QuantityFile)
}

func (a *app) accumulatorConfig(store *csvstore.FileStore) services.AccumulatorConfig {
	return services.AccumulatorConfig{
		StartDate:    a.cfg.StartDateValue(),
		Location:     a.cfg.Location(),
		ValueFile:    store.ValuePath(),
		QuantityFile: store.QuantityPath(),
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "stock-etl",
		Short:         "Append month-end stock value and quantity snapshots from the ERP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.LoadEnvFile(); err != nil {
				return err
			}
			a.logger = cli.SetupLogger(os.Getenv("LOG_LEVEL"))

			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newExportCmd(a))
	return cmd
}

// Execute runs the command tree and exits 1 on error. SIGINT and SIGTERM
// cancel the command's context.
func Execute() {
	ctx, stop := cli.SignalContext(context.Background())

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		applog.Default().Error("stock-etl failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
}
