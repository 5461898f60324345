package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"luxctl/internal/config"
	"luxctl/internal/model"
)

// Store persists readings and action events. Appends are best-effort from
// the control loop's perspective: failures are logged by the caller and
// never retried or allowed to block a tick.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveReading(ctx context.Context, r model.Reading) error
	SaveAction(ctx context.Context, a model.ActionEvent) error
	Readings(ctx context.Context, since time.Time, limit int) ([]model.Reading, error)
	Actions(ctx context.Context, since time.Time, limit int) ([]model.ActionEvent, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
