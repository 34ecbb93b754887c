package core

import (
	"context"
	"fmt"

	"txkit/internal/config"
	"txkit/internal/infra/persistence/badger"
	"txkit/internal/infra/persistence/memory"
	"txkit/internal/infra/persistence/postgres"
	"txkit/internal/infra/persistence/sqlite"
	"txkit/pkg/domain"
)

// OpenConnection selects a store backend from cfg. An empty driver selects
// sqlite. Attributes listed in cfg.Schema are declared on open.
func OpenConnection(ctx context.Context, cfg config.Storage) (domain.Connection, error) {
	opts := []memory.Option{memory.WithSchema(cfg.Schema...)}
	driver := cfg.Driver
	if driver == "" {
		driver = config.DriverSQLite
	}
	switch driver {
	case config.DriverMemory:
		return memory.NewStore(opts...), nil
	case config.DriverSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverBadger:
		store, err := badger.Open(cfg.BadgerDir, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
