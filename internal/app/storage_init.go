package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

// storageRuntime — хранилище, выбранное конфигурацией.
type storageRuntime struct {
	uow         domain.UnitOfWork
	idempotency domain.IdempotencyRepository
	seeder      domain.CatalogSeeder
	pinger      health.Pinger
	close       func() error
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageRuntime, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &storageRuntime{
			uow:         store,
			idempotency: memory.NewIdempotencyRepository(),
			seeder:      store,
			pinger:      store,
			close:       func() error { return nil },
		}, nil
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres storage requires MARKETPLACE_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			logger.WithFields(log.Fields{
				"schema_version": state.Version,
				"applied":        state.Applied,
			}).Info("postgres migrations applied")
		}
		logger.Info("using postgres storage")
		return &storageRuntime{
			uow:         store,
			idempotency: postgres.NewIdempotencyRepository(store),
			seeder:      store,
			pinger:      store,
			close:       store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// seedCatalog загружает справочник из JSON-файла, если он задан.
func seedCatalog(ctx context.Context, path string, seeder domain.CatalogSeeder, logger *log.Entry) error {
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var catalog domain.Catalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return fmt.Errorf("decode seed file %s: %w", path, err)
	}
	if err := seeder.SeedCatalog(ctx, catalog); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	logger.WithFields(log.Fields{
		"file":     path,
		"buyers":   len(catalog.Buyers),
		"sellers":  len(catalog.Sellers),
		"products": len(catalog.Products),
	}).Info("catalog seeded")
	return nil
}
