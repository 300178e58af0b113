// Package store selects and opens a Repository implementation from
// configuration.
package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/notedeck/notedeck/internal/paths"
	"github.com/notedeck/notedeck/internal/sqlite"
	"github.com/notedeck/notedeck/pkg/types"
)

// Open returns the Repository for cfg's backend kind. Pools are looked up
// through the caller-owned manager so repeated opens of the same database
// path share one writer. The graph backend runs out of process and is not
// bundled; selecting it reports ErrBackendUnavailable.
func Open(cfg types.Config, pools *sqlite.PoolManager, logger *zap.Logger) (types.Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Kind {
	case types.KindSQLite:
		url := cfg.URL
		if url == "" {
			url = paths.DefaultDatabaseURL
		}
		path := paths.DatabasePath(url)
		opts := []sqlite.PoolOption{sqlite.WithLogger(logger)}
		if cfg.MaxReaders > 0 {
			opts = append(opts, sqlite.WithMaxReaders(cfg.MaxReaders))
		}
		if cfg.WriteTimeout > 0 {
			opts = append(opts, sqlite.WithWriteTimeout(cfg.WriteTimeout))
		}
		pool := pools.Get(path, opts...)
		return sqlite.NewRepository(pool, sqlite.WithRepositoryLogger(logger)), nil

	case types.KindSurreal:
		return nil, fmt.Errorf("opening store: kind %q: %w", cfg.Kind, types.ErrBackendUnavailable)

	default:
		return nil, fmt.Errorf("opening store: kind %q: %w", cfg.Kind, types.ErrKindUnknown)
	}
}
