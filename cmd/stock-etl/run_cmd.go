package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"stockhistory/internal/cli"
	"stockhistory/internal/core"
	applog "stockhistory/internal/log"
	"stockhistory/internal/services"
	"stockhistory/internal/warehouse"
)

type runOptions struct {
	rebuild bool
	today   string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Query every month end since the last snapshot and append it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccumulate(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Ignore the persisted files and backfill from STOCK_START_DATE")
	cmd.Flags().StringVar(&opts.today, "today", "", "Treat this day (YYYY-MM-DD) as today")
	return cmd
}

func runAccumulate(ctx context.Context, a *app, opts runOptions, out io.Writer) error {
	var today core.Date
	if strings.TrimSpace(opts.today) != "" {
		d, err := core.ParseDate(opts.today)
		if err != nil {
			return fmt.Errorf("invalid --today: %w", err)
		}
		today = d
	}

	if err := a.cfg.ValidateSource(); err != nil {
		return err
	}
	whCfg, err := warehouse.FromAppConfig(a.cfg)
	if err != nil {
		return err
	}
	source, err := warehouse.Open(ctx, whCfg, a.logger.WithComponent(applog.ComponentWarehouse).Logger)
	if err != nil {
		return err
	}
	defer source.Close()

	var recorder services.RunRecorder
	journal, err := cli.OpenRunJournal(a.cfg, a.logger)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
		recorder = journal
	}

	var notifier services.Notifier
	client, err := cli.OpenAMQP(a.cfg, "", a.logger)
	if err != nil {
		a.logger.Warn("Continuing without snapshot notifications", applog.FieldError, err.Error())
	} else if client != nil {
		defer client.Close()
		notifier = client
	}

	store := a.snapshotStore()
	accCfg := a.accumulatorConfig(store)
	accCfg.Today = today
	acc := services.NewSnapshotAccumulator(source, store, recorder, notifier, accCfg, a.logger)

	var result services.RunResult
	if opts.rebuild {
		result, err = acc.Rebuild(ctx)
	} else {
		result, err = acc.Run(ctx)
	}
	if err != nil {
		return err
	}

	printResult(out, result)
	return nil
}

func printResult(out io.Writer, r services.RunResult) {
	switch {
	case r.Status == core.RunNoop && r.LastDate.IsZero():
		fmt.Fprintf(out, "Nothing to do: no month end in %s has passed yet\n", r.Window)
	case r.Status == core.RunNoop:
		fmt.Fprintf(out, "Nothing to do: snapshots are current through %s\n", r.LastDate)
	default:
		fmt.Fprintf(out, "Appended %d month(s) in %s; snapshots now end at %s (%d rows, %d assortments)\n",
			r.MonthsAppended, r.Window, r.LastDate, r.Rows, len(r.Columns))
	}
}
