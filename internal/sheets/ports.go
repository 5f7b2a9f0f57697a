package sheets

import (
	"context"

	"stockhistory/internal/core"
)

// Ports for outbound spreadsheet adapters.
type (
	// TableWriter replaces the content of a sheet with a snapshot table:
	// a header row, then one row per date.
	TableWriter interface {
		WriteTable(ctx context.Context, sheet string, t core.Table) error
	}

	// TableReader reads back a sheet written by a TableWriter.
	TableReader interface {
		ReadTable(ctx context.Context, sheet string) (core.Table, error)
	}

	TableMirror interface {
		TableWriter
		TableReader
	}
)
