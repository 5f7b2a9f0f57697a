package warehouse

import (
	"database/sql"
	"embed"
	"fmt"

	"stockhistory/internal/config"
	"stockhistory/internal/core"
)

//go:embed queries/*.sql
var queryFS embed.FS

// dialect pairs a driver with its as-of query and argument binding.
type dialect struct {
	name       string
	driverName string
	query      string
	args       func(asOf core.Date, rng core.AssortmentRange) []any
}

func dialectFor(driver string) (dialect, error) {
	var d dialect
	switch driver {
	case config.DriverSQLServer:
		d = dialect{
			name:       config.DriverSQLServer,
			driverName: "sqlserver",
			args: func(asOf core.Date, rng core.AssortmentRange) []any {
				return []any{
					sql.Named("as_of", asOf.Time()),
					sql.Named("low", string(rng.Low)),
					sql.Named("high", string(rng.High)),
				}
			},
		}
	case config.DriverPostgres:
		d = dialect{
			name:       config.DriverPostgres,
			driverName: "pgx",
			// A text date keeps the comparison out of the session time zone.
			args: func(asOf core.Date, rng core.AssortmentRange) []any {
				return []any{asOf.String(), string(rng.Low), string(rng.High)}
			},
		}
	case config.DriverSQLite:
		d = dialect{
			name:       config.DriverSQLite,
			driverName: "sqlite",
			args: func(asOf core.Date, rng core.AssortmentRange) []any {
				return []any{asOf.String(), string(rng.Low), string(rng.High)}
			},
		}
	default:
		return dialect{}, fmt.Errorf("unsupported source driver: %s", driver)
	}

	q, err := queryFS.ReadFile("queries/" + d.name + ".sql")
	if err != nil {
		return dialect{}, fmt.Errorf("failed to load %s query: %w", d.name, err)
	}
	d.query = string(q)
	return d, nil
}
