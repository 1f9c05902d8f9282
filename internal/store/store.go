// Package store persists credentials, rules and classification records.
//
// Two implementations exist: Memory, used by default and in tests, and SQL,
// which runs on SQLite (modernc.org/sqlite) or Postgres (pgx) through sqlx.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/inboxsorter/internal/classify"
	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/rules"
)

// Store is the complete persistence surface of the service.
type Store interface {
	credential.Store
	rules.Store
	classify.RecordStore

	Ping(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg. SQL stores are migrated before
// they are returned.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "", config.DriverMemory:
		logger.Info("using in-memory store")
		return NewMemory(), nil
	case config.DriverSQLite, config.DriverPostgres:
		s, err := OpenSQL(ctx, cfg.Driver, cfg.URL)
		if err != nil {
			return nil, err
		}
		logger.Info("using SQL store", slog.String("driver", cfg.Driver))
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
