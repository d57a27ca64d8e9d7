package model

import (
	"time"

	"github.com/google/uuid"
)

// Watcher subscribes a user to every change of one resource.
type Watcher struct {
	ID        uuid.UUID   `json:"id"`
	Resource  ResourceRef `json:"resource"`
	UserID    uuid.UUID   `json:"user_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// JournalEvent describes one change-log entry written for a resource. The
// ledger fans it out to the resource's watchers.
type JournalEvent struct {
	JournalID uuid.UUID   `json:"journal_id" binding:"required"`
	ProjectID uuid.UUID   `json:"project_id" binding:"required"`
	ActorID   uuid.UUID   `json:"actor_id" binding:"required"`
	Resource  ResourceRef `json:"resource"`
	Notes     string      `json:"notes"`
}
