// Package persistence selects and prepares the configured storage backend.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/therapymatch/internal/config"
	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/persistence/memory"
	"example.com/therapymatch/internal/persistence/postgres"
	"example.com/therapymatch/internal/persistence/seed"
)

// Store is the full persistence surface used by the binaries.
type Store interface {
	domain.Repository
	domain.ChatRepository
}

// Open builds the store named by cfg.Store and loads the bundled sample data when SeedOnStart is
// set. The returned close function releases backend resources.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo := postgres.NewRepository(pool)
		if cfg.SeedOnStart {
			if err := repo.Seed(ctx, seed.MustLoad()); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("seed postgres: %w", err)
			}
			logger.Info("postgres store seeded with sample data")
		}
		logger.Info("using postgres store")
		return repo, pool.Close, nil
	default:
		if !cfg.SeedOnStart {
			logger.Info("using empty in-memory store")
			return memory.NewRepository(), func() {}, nil
		}
		repo, err := memory.NewSeededRepository()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using in-memory store with sample data")
		return repo, func() {}, nil
	}
}
