// Package backends opens the dataset backend named by configuration.
package backends

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"

	"ledgerlens/internal/config"
	"ledgerlens/internal/datastore"
	"ledgerlens/internal/datastore/postgres"
	"ledgerlens/internal/datastore/sqlite"
)

// Open builds the memory store with opts and wraps it in the configured
// persistent backend, if any
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger, opts ...datastore.Option) (datastore.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]datastore.Option{
		datastore.WithLogger(logger),
		datastore.WithBatchSize(cfg.BatchSize),
	}, opts...)
	mem := datastore.NewStore(opts...)

	var (
		backend datastore.Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendMemory, "":
		backend = mem
	case config.BackendSQLite:
		backend, err = sqlite.Open(ctx, cfg.SQLitePath, mem)
	case config.BackendPostgres:
		backend, err = postgres.Open(ctx, cfg.PostgresDSN, mem)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	logger.Info("storage backend ready",
		slog.String("component", "datastore"),
		slog.String("backend", cmp.Or(cfg.Backend, config.BackendMemory)))
	return backend, nil
}

