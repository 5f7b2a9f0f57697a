package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"stockhistory/internal/cli"
	"stockhistory/internal/core"
	"stockhistory/internal/services"
)

func newStatusCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted snapshots, the pending months and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), a, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&limit, "runs", 10, "Number of journal entries to list")
	return cmd
}

func runStatus(ctx context.Context, a *app, limit int, out io.Writer) error {
	store := a.snapshotStore()
	acc := services.NewSnapshotAccumulator(nil, store, nil, nil, a.accumulatorConfig(store), a.logger)

	status, err := acc.Status(ctx)
	if err != nil {
		return err
	}

	if status.HasState {
		fmt.Fprintf(out, "Snapshots:   %s, %s\n", store.ValuePath(), store.QuantityPath())
		fmt.Fprintf(out, "Last date:   %s (%d rows)\n", status.LastDate, status.Rows)
		fmt.Fprintf(out, "Assortments: %s\n", core.JoinAssortments(status.Columns))
	} else {
		fmt.Fprintln(out, "Snapshots:   none yet")
	}
	fmt.Fprintf(out, "Pending:     %d month(s)", len(status.PendingMonths))
	if len(status.PendingMonths) > 0 {
		fmt.Fprintf(out, " in %s", status.NextWindow)
	}
	fmt.Fprintln(out)

	journal, err := cli.OpenRunJournal(a.cfg, a.logger)
	if err != nil || journal == nil {
		return err
	}
	defer journal.Close()

	runs, err := journal.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "\nNo runs recorded")
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tMONTHS\tLAST DATE\tDURATION\tERROR")
	for _, r := range runs {
		last := ""
		if !r.LastDate.IsZero() {
			last = r.LastDate.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			r.MonthsAppended,
			last,
			r.Duration().Round(time.Millisecond),
			r.Error)
	}
	return tw.Flush()
}
