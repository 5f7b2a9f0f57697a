package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	// Source database drivers.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"stockhistory/internal/config"
	"stockhistory/internal/core"
)

// Config holds what is needed to reach the ERP database.
type Config struct {
	Driver                 string
	Server                 string
	Port                   string
	Database               string
	Username               string
	Password               string
	TrustServerCertificate bool
	Range                  core.AssortmentRange
}

// FromAppConfig builds a source config from the process configuration.
func FromAppConfig(cfg *config.Config) (Config, error) {
	driver, err := cfg.Driver()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Driver:                 driver,
		Server:                 cfg.DBServer,
		Port:                   cfg.DBPort,
		Database:               cfg.DBDatabase,
		Username:               cfg.DBUsername,
		Password:               cfg.DBPassword,
		TrustServerCertificate: cfg.DBTrustServerCertificate,
		Range:                  cfg.AssortmentRange(),
	}, nil
}

// DSN returns the database/sql driver name and connection string.
func (c Config) DSN() (string, string, error) {
	switch c.Driver {
	case config.DriverSQLServer:
		return "sqlserver", c.sqlServerDSN(), nil
	case config.DriverPostgres:
		return "pgx", c.postgresDSN(), nil
	case config.DriverSQLite:
		if c.Database == "" {
			return "", "", fmt.Errorf("sqlite source needs a database path")
		}
		return "sqlite", c.Database, nil
	default:
		return "", "", fmt.Errorf("unsupported source driver: %s", c.Driver)
	}
}

// sqlServerDSN accepts "host", "host\instance" and the ODBC "host,port" forms.
func (c Config) sqlServerDSN() string {
	host, instance, _ := strings.Cut(c.Server, `\`)
	port := c.Port
	if h, p, ok := strings.Cut(host, ","); ok {
		host = strings.TrimSpace(h)
		if port == "" {
			port = strings.TrimSpace(p)
		}
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}

	q := url.Values{}
	q.Set("database", c.Database)
	q.Set("TrustServerCertificate", fmt.Sprintf("%t", c.TrustServerCertificate))
	q.Set("app name", "stock-etl")

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     host,
		RawQuery: q.Encode(),
	}
	if instance != "" {
		u.Path = instance
	}
	return u.String()
}

func (c Config) postgresDSN() string {
	host := c.Server
	if c.Port != "" {
		host = net.JoinHostPort(host, c.Port)
	}
	q := url.Values{}
	q.Set("sslmode", "prefer")
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     host,
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open connects to the source database and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driverName, dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s source: %w", cfg.Driver, err)
	}

	// The accumulator issues one query at a time.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s source: %w", cfg.Driver, err)
	}

	src, err := NewSource(db, cfg.Driver, cfg.Range)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to source database",
		"driver", cfg.Driver,
		"server", cfg.Server,
		"database", cfg.Database,
		"assortments", cfg.Range.String())

	return src, nil
}
