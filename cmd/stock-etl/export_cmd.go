package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"stockhistory/internal/core"
	"stockhistory/internal/export"
)

type exportOptions struct {
	output      string
	assortments string
	horizon     string
}

func newExportCmd(a *app) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the snapshots to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.output, "output", "stock_history.xlsx", "Workbook path")
	cmd.Flags().StringVar(&opts.assortments, "assortments", "", "Comma separated codes to keep (default all)")
	cmd.Flags().StringVar(&opts.horizon, "horizon", "", "Months to keep, or a label such as \"1 Year\" (default all)")
	return cmd
}

func runExport(ctx context.Context, a *app, opts exportOptions, out io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, quantity, err := a.snapshotStore().Load()
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}

	if codes := core.ParseAssortments(opts.assortments); len(codes) > 0 {
		if value, err = value.Select(codes); err != nil {
			return fmt.Errorf("invalid --assortments: %w", err)
		}
		if quantity, err = quantity.Select(codes); err != nil {
			return fmt.Errorf("invalid --assortments: %w", err)
		}
	}
	if strings.TrimSpace(opts.horizon) != "" {
		h, err := core.ParseHorizon(opts.horizon)
		if err != nil {
			return fmt.Errorf("invalid --horizon: %w", err)
		}
		value, quantity = value.Tail(h.Months), quantity.Tail(h.Months)
	}

	if err := export.WriteFile(opts.output, value, quantity); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s (%d rows, %d assortments)\n", opts.output, value.Len(), len(value.Columns))
	return nil
}
