package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-access/internal/access"
	"github.com/kozaktomas/face-access/internal/config"
	"github.com/kozaktomas/face-access/internal/database/postgres"
	"github.com/kozaktomas/face-access/internal/logging"
)

// openStores connects to PostgreSQL, applies migrations and loads the status catalog.
func openStores(ctx context.Context, cfg *config.Config) (*postgres.Stores, *access.StatusCatalog, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	stores := postgres.NewStores(pool)

	statuses, err := access.LoadStatusCatalog(ctx, stores.Catalog)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("loading status catalog: %w", err)
	}
	return stores, statuses, nil
}

// newLogger builds the JSON logger used by every command.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewJSON(os.Stderr, cfg.Log.Level)
}
