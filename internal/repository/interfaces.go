package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/model"
)

// ErrNotFound is returned by every repository when a row does not exist.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// NotificationRepository is the ledger store.
	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		CreateBatch(ctx context.Context, ns []*model.Notification) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		ListForRecipient(ctx context.Context, recipientID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error)
		ListUnsentMailReminders(ctx context.Context, before time.Time) ([]*model.Notification, error)
		ListUnsentMailAlerts(ctx context.Context) ([]*model.Notification, error)

		// MarkSent flips one channel with a compare-and-set. It reports false
		// when the channel was already sent.
		MarkSent(ctx context.Context, id uuid.UUID, channel model.Channel, at time.Time) (bool, error)
		MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
		MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error)

		// ClaimUnsent locks up to limit unsent rows of channel for the life of
		// the returned batch. Rows held by another batch are skipped. A zero
		// before means no cut-off.
		ClaimUnsent(ctx context.Context, channel model.Channel, before time.Time, limit int) (DeliveryBatch, error)

		Delete(ctx context.Context, id uuid.UUID) error
		DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// DeliveryBatch is a set of claimed rows. Commit or Rollback must be
	// called exactly once; both release the claim.
	DeliveryBatch interface {
		Notifications() []*model.Notification
		MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
		Commit() error
		Rollback() error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetMany(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)
	}

	MemberRepository interface {
		Add(ctx context.Context, m model.Member) error
		IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
		ProjectsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	}

	WatcherRepository interface {
		Add(ctx context.Context, w *model.Watcher) error
		Remove(ctx context.Context, resource model.ResourceRef, userID uuid.UUID) error
		List(ctx context.Context, resource model.ResourceRef) ([]*model.Watcher, error)
		IsWatching(ctx context.Context, resource model.ResourceRef, userID uuid.UUID) (bool, error)
	}

	WorkPackageRepository interface {
		Create(ctx context.Context, wp *model.WorkPackage) error
		Get(ctx context.Context, id uuid.UUID) (*model.WorkPackage, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}
)
