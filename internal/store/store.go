// Package store selects the policy persistence backend from configuration.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/store/gormstore"
	"github.com/JonMunkholm/policyimport/internal/store/memstore"
	"github.com/JonMunkholm/policyimport/internal/store/postgres"
)

// Store is a PolicyCreator with a connection lifecycle.
type Store interface {
	core.PolicyCreator
	Ping(ctx context.Context) error
	Close() error
}

// Supported drivers.
const (
	DriverPostgres     = "postgres"
	DriverGormPostgres = "gorm-postgres"
	DriverSQLite       = "sqlite"
	DriverMemory       = "memory"
)

// Open opens the store named by cfg.Store.Driver. The postgres store is
// migrated when cfg.Database.AutoMigrate is set; the gorm backends
// (gorm-postgres, sqlite) are always auto-migrated.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil
	case DriverGormPostgres:
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("store driver %s: database URL is empty", DriverGormPostgres)
		}
		s, err := gormstore.OpenPostgres(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := gormstore.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
