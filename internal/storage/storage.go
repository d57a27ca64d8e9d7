package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/internal/repository"
	"github.com/jwalitptl/notification-ledger/internal/repository/memory"
	"github.com/jwalitptl/notification-ledger/internal/repository/postgres"
	"github.com/jwalitptl/notification-ledger/pkg/metrics"
)

// Store bundles the repositories of one backend.
type Store struct {
	// DB is nil for the memory driver.
	DB *sqlx.DB

	Notifications repository.NotificationRepository
	Users         repository.UserRepository
	Members       repository.MemberRepository
	Watchers      repository.WatcherRepository
	WorkPackages  repository.WorkPackageRepository
}

// Open connects the configured driver. The postgres schema is not migrated
// here; run the migrate command first.
func Open(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		return NewMemory(), nil
	case config.StorageDriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		base := postgres.NewBaseRepository(db, m)
		return &Store{
			DB:            db,
			Notifications: postgres.NewNotificationRepository(base),
			Users:         postgres.NewUserRepository(base),
			Members:       postgres.NewMemberRepository(base),
			Watchers:      postgres.NewWatcherRepository(base),
			WorkPackages:  postgres.NewWorkPackageRepository(base),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func NewMemory() *Store {
	return &Store{
		Notifications: memory.NewNotificationRepository(),
		Users:         memory.NewUserRepository(),
		Members:       memory.NewMemberRepository(),
		Watchers:      memory.NewWatcherRepository(),
		WorkPackages:  memory.NewWorkPackageRepository(),
	}
}

// Persistent reports whether the store outlives the process.
func (s *Store) Persistent() bool {
	return s.DB != nil
}

// PingContext checks the database. It always succeeds for the memory driver.
func (s *Store) PingContext(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
