package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stockhistory/internal/core"
)

// Canonical source database drivers.
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
)

type Config struct {
	// Source database
	DBDriver                 string
	DBServer                 string
	DBPort                   string
	DBDatabase               string
	DBUsername               string
	DBPassword               string
	DBTrustServerCertificate bool

	// Snapshot files
	DataDir        string
	ValueFile      string
	QuantityFile   string
	StartDate      string
	AssortmentLow  string
	AssortmentHigh string
	Timezone       string

	// Run journal
	RunsDBPath    string
	RunStaleAfter time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// HTTP API
	Port     string
	CacheTTL time.Duration

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleValueSheet         string
	GoogleQuantitySheet      string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		DBDriver:                 getEnv("DB_DRIVER", DriverSQLServer),
		DBServer:                 getEnv("DB_SERVER", ""),
		DBPort:                   getEnv("DB_PORT", ""),
		DBDatabase:               getEnv("DB_DATABASE", ""),
		DBUsername:               getEnv("DB_USERNAME", ""),
		DBPassword:               getEnv("DB_PASSWORD", ""),
		DBTrustServerCertificate: getEnvBool("DB_TRUST_SERVER_CERTIFICATE", true),

		DataDir:        getEnv("STOCK_DATA_DIR", "data"),
		ValueFile:      getEnv("STOCK_VALUE_FILE", "stock_value.csv"),
		QuantityFile:   getEnv("STOCK_QUANTITY_FILE", "stock_quantity.csv"),
		StartDate:      getEnv("STOCK_START_DATE", "2018-01-01"),
		AssortmentLow:  getEnv("ASSORTMENT_LOW", string(core.DefaultAssortmentRange.Low)),
		AssortmentHigh: getEnv("ASSORTMENT_HIGH", string(core.DefaultAssortmentRange.High)),
		Timezone:       getEnv("STOCK_TIMEZONE", "Local"),

		RunsDBPath:    getEnvOrEmpty("RUNS_DB_PATH", "./data/runs.db"),
		RunStaleAfter: getEnvDuration("RUN_STALE_AFTER", 6*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "stock"),
		AMQPQueue:    getEnv("AMQP_QUEUE", ""),

		Port:     getEnv("PORT", "8082"),
		CacheTTL: getEnvDuration("CACHE_TTL", 48*time.Hour),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		GoogleValueSheet:         getEnv("GOOGLE_VALUE_SHEET", "Stock value"),
		GoogleQuantitySheet:      getEnv("GOOGLE_QUANTITY_SHEET", "Stock quantity"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate checks the settings shared by every binary.
func (c *Config) Validate() error {
	var errors []string

	if c.DataDir == "" {
		errors = append(errors, "data directory cannot be empty")
	}
	if c.ValueFile == "" || c.QuantityFile == "" {
		errors = append(errors, "snapshot file names cannot be empty")
	} else if c.ValueFile == c.QuantityFile {
		errors = append(errors, fmt.Sprintf("value and quantity files must differ, both are '%s'", c.ValueFile))
	}

	if _, err := core.ParseDate(c.StartDate); err != nil {
		errors = append(errors, fmt.Sprintf("invalid start date: %v", err))
	}
	if err := c.AssortmentRange().Validate(); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.RunsDBPath != "" {
		dir := filepath.Dir(c.RunsDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create run journal directory '%s': %v", dir, err))
				}
			}
		}
	}
	if c.RunStaleAfter < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid run stale timeout %v: must be at least 1 minute", c.RunStaleAfter))
	}

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateSource checks the source database settings needed by the ETL.
func (c *Config) ValidateSource() error {
	var errors []string

	driver, err := c.Driver()
	if err != nil {
		errors = append(errors, err.Error())
	}
	if c.DBDatabase == "" {
		errors = append(errors, "DB_DATABASE is required")
	}
	if driver != DriverSQLite && err == nil {
		if c.DBServer == "" {
			errors = append(errors, "DB_SERVER is required")
		}
		if c.DBUsername == "" {
			errors = append(errors, "DB_USERNAME is required")
		}
	}
	if c.DBPort != "" {
		if port, err := strconv.Atoi(c.DBPort); err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid database port '%s'", c.DBPort))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("source database configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateSheets checks the Google Sheets mirror settings.
func (c *Config) ValidateSheets() error {
	var errors []string

	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required for the sheets mirror")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if c.GoogleValueSheet == "" || c.GoogleQuantitySheet == "" {
		errors = append(errors, "sheet names cannot be empty")
	} else if c.GoogleValueSheet == c.GoogleQuantitySheet {
		errors = append(errors, "value and quantity sheets must differ")
	}
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the sheets mirror")
	}

	if len(errors) > 0 {
		return fmt.Errorf("sheets configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Driver returns the canonical driver name. ODBC driver names such as
// "ODBC Driver 18 for SQL Server" select SQL Server.
func (c *Config) Driver() (string, error) {
	d := strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch {
	case d == "sqlserver" || d == "mssql" || strings.Contains(d, "sql server"):
		return DriverSQLServer, nil
	case d == "postgres" || d == "postgresql" || d == "pgx":
		return DriverPostgres, nil
	case d == "sqlite" || d == "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("invalid database driver '%s': must be one of [%s %s %s]", c.DBDriver, DriverSQLServer, DriverPostgres, DriverSQLite)
	}
}

// StartDateValue returns the parsed start date; call Validate first.
func (c *Config) StartDateValue() core.Date {
	d, _ := core.ParseDate(c.StartDate)
	return d
}

func (c *Config) AssortmentRange() core.AssortmentRange {
	return core.AssortmentRange{
		Low:  core.NormalizeAssortment(c.AssortmentLow),
		High: core.NormalizeAssortment(c.AssortmentHigh),
	}
}

// Location returns the time zone used to decide what "today" is.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrEmpty keeps an explicitly empty value, which turns the setting off.
func getEnvOrEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
