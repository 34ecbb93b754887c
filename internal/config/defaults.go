package config

import (
	"time"

	"txkit/internal/infra/persistence/sqlite"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Storage: Storage{
			Driver:     DriverSQLite,
			SQLitePath: sqlite.DefaultPath,
			BadgerDir:  "txkit-badger",
		},
		Archive: Archive{
			Driver: "fs",
			FSRoot: "./archive",
			Prefix: "log",
		},
		Browser: Browser{
			Kinds:    []string{"chrome-headless"},
			Headless: true,
			Timeout:  30 * time.Second,
		},
		Log: Log{Level: "info"},
	}
}
