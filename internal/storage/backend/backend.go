// Package backend opens the storage.Store selected by configuration,
// together with the audit trail that lives in the same database.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/groupledger/internal/audit"
	"github.com/mmynk/groupledger/internal/config"
	"github.com/mmynk/groupledger/internal/storage"
	"github.com/mmynk/groupledger/internal/storage/mongo"
	"github.com/mmynk/groupledger/internal/storage/postgres"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
)

// Backend is an open store and its database audit trail.
type Backend struct {
	Store storage.Store
	Trail audit.Trail
}

// Open connects to the configured driver and brings its schema up to date.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.Driver, "database", cfg.SQLitePath)
		return &Backend{Store: store, Trail: store.AuditTrail()}, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		store := postgres.New(pool)
		slog.Info("Storage initialized", "driver", cfg.Driver)
		return &Backend{Store: store, Trail: store.AuditTrail()}, nil

	case config.DriverMongo:
		store, err := mongo.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate mongo: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.Driver, "database", cfg.MongoDatabase)
		return &Backend{Store: store, Trail: store.AuditTrail()}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Close releases the store.
func (b *Backend) Close() error {
	return b.Store.Close()
}
