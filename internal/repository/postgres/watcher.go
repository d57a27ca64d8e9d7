package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
)

type watcherRow struct {
	ID           uuid.UUID `db:"id"`
	ResourceType string    `db:"resource_type"`
	ResourceID   uuid.UUID `db:"resource_id"`
	UserID       uuid.UUID `db:"user_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r watcherRow) toModel() *model.Watcher {
	return &model.Watcher{
		ID:        r.ID,
		Resource:  model.ResourceRef{Type: model.ResourceType(r.ResourceType), ID: r.ResourceID},
		UserID:    r.UserID,
		CreatedAt: r.CreatedAt,
	}
}

type watcherRepository struct {
	BaseRepository
}

func NewWatcherRepository(base BaseRepository) repository.WatcherRepository {
	return &watcherRepository{base}
}

// Add is idempotent; watching twice keeps the first row.
func (r *watcherRepository) Add(ctx context.Context, w *model.Watcher) (err error) {
	defer r.observe("watcher_add", time.Now(), &err)

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO watchers (id, resource_type, resource_id, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (resource_type, resource_id, user_id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query, w.ID, string(w.Resource.Type), w.Resource.ID, w.UserID, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add watcher: %w", err)
	}
	return nil
}

func (r *watcherRepository) Remove(ctx context.Context, resource model.ResourceRef, userID uuid.UUID) (err error) {
	defer r.observe("watcher_remove", time.Now(), &err)

	query := `DELETE FROM watchers WHERE resource_type = $1 AND resource_id = $2 AND user_id = $3`
	res, err := r.db.ExecContext(ctx, query, string(resource.Type), resource.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove watcher: %w", err)
	}
	return rowsAffected(res)
}

func (r *watcherRepository) List(ctx context.Context, resource model.ResourceRef) (ws []*model.Watcher, err error) {
	defer r.observe("watcher_list", time.Now(), &err)

	query := `
		SELECT id, resource_type, resource_id, user_id, created_at
		FROM watchers
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at, id
	`
	var rows []watcherRow
	if err = r.db.SelectContext(ctx, &rows, query, string(resource.Type), resource.ID); err != nil {
		return nil, fmt.Errorf("failed to list watchers: %w", err)
	}

	ws = make([]*model.Watcher, len(rows))
	for i, row := range rows {
		ws[i] = row.toModel()
	}
	return ws, nil
}

func (r *watcherRepository) IsWatching(ctx context.Context, resource model.ResourceRef, userID uuid.UUID) (ok bool, err error) {
	defer r.observe("watcher_check", time.Now(), &err)

	query := `
		SELECT EXISTS (
			SELECT 1 FROM watchers
			WHERE resource_type = $1 AND resource_id = $2 AND user_id = $3
		)
	`
	if err = r.db.GetContext(ctx, &ok, query, string(resource.Type), resource.ID, userID); err != nil {
		return false, fmt.Errorf("failed to check watcher: %w", err)
	}
	return ok, nil
}
