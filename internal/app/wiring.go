package service

import (
	"context"
	"fmt"
	"io"

	"github.com/okian/detflow/internal/adapters/lock"
	"github.com/okian/detflow/internal/adapters/repository"
	"github.com/okian/detflow/internal/config"
	"github.com/okian/detflow/pkg/logger"
)

func openStore(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return repository.NewMemoryStore(), nil
	default:
		db, err := repository.OpenGorm(cfg.Driver, cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewGormStore(ctx, db)
		if err != nil {
			if sqlDB, derr := db.DB(); derr == nil {
				_ = sqlDB.Close()
			}
			return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
		}
		return store, nil
	}
}

// openLocker returns the configured locker and, for remote lockers, the
// connection to close on shutdown.
func openLocker(ctx context.Context, cfg config.LockConfig) (lock.Locker, io.Closer, error) {
	switch cfg.Driver {
	case "", "local":
		return lock.NewLocal(), nil, nil
	case "redis":
		client, err := lock.Dial(ctx, cfg.Addr, cfg.Password, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		return lock.NewRedis(client, lock.WithTTL(cfg.TTL), lock.WithKeyPrefix(cfg.KeyPrefix)), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}
