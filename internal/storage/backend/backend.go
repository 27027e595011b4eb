// Package backend opens the storage.Store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/habitkit/habits/internal/config"
	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/internal/storage/bolt"
	"github.com/habitkit/habits/internal/storage/sqlstore"
)

func Open(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	logger.Info("Opening storage", "driver", cfg.Driver, "path", cfg.Path, "host", cfg.Host)
	switch cfg.Driver {
	case "bolt":
		s, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return s, nil
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		dsn := cfg.Path
		if cfg.Driver == sqlstore.DriverPostgres {
			dsn = cfg.PostgresDSN()
		}
		s, err := sqlstore.Open(ctx, cfg.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
