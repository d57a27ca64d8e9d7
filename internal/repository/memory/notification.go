package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
)

var errBatchClosed = errors.New("delivery batch already closed")

// NotificationRepository keeps the ledger in process memory. Claims mimic
// FOR UPDATE SKIP LOCKED: a claimed row is invisible to other claims of the
// same channel until the batch is closed.
type NotificationRepository struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*model.Notification
	claimed map[model.Channel]map[uuid.UUID]struct{}
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		items: make(map[uuid.UUID]*model.Notification),
		claimed: map[model.Channel]map[uuid.UUID]struct{}{
			model.ChannelMailReminder: {},
			model.ChannelMailAlert:    {},
		},
	}
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

func clone(n *model.Notification) *model.Notification {
	c := *n
	return &c
}

func sortByCreated(ns []*model.Notification, desc bool) {
	sort.Slice(ns, func(i, j int) bool {
		a, b := ns[i], ns[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if desc {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func (r *NotificationRepository) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[n.ID]; ok {
		return errors.New("notification already exists")
	}
	r.items[n.ID] = clone(n)
	return nil
}

func (r *NotificationRepository) CreateBatch(_ context.Context, ns []*model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range ns {
		if _, ok := r.items[n.ID]; ok {
			return errors.New("notification already exists")
		}
	}
	for _, n := range ns {
		r.items[n.ID] = clone(n)
	}
	return nil
}

func (r *NotificationRepository) Get(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(n), nil
}

func (r *NotificationRepository) ListForRecipient(_ context.Context, recipientID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error) {
	r.mu.Lock()
	var out []*model.Notification
	for _, n := range r.items {
		if n.RecipientID == recipientID && filter.Match(n) {
			out = append(out, clone(n))
		}
	}
	r.mu.Unlock()

	sortByCreated(out, true)

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*model.Notification{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	if out == nil {
		out = []*model.Notification{}
	}
	return out, nil
}

func (r *NotificationRepository) ListUnsentMailReminders(_ context.Context, before time.Time) ([]*model.Notification, error) {
	return r.collect(func(n *model.Notification) bool { return n.DueForReminder(before) }), nil
}

func (r *NotificationRepository) ListUnsentMailAlerts(_ context.Context) ([]*model.Notification, error) {
	return r.collect(func(n *model.Notification) bool { return !n.MailAlertSent }), nil
}

func (r *NotificationRepository) collect(keep func(*model.Notification) bool) []*model.Notification {
	r.mu.Lock()
	out := make([]*model.Notification, 0)
	for _, n := range r.items {
		if keep(n) {
			out = append(out, clone(n))
		}
	}
	r.mu.Unlock()

	sortByCreated(out, false)
	return out
}

func (r *NotificationRepository) MarkSent(_ context.Context, id uuid.UUID, ch model.Channel, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markSentLocked(id, ch, at)
}

func (r *NotificationRepository) markSentLocked(id uuid.UUID, ch model.Channel, at time.Time) (bool, error) {
	if !ch.Valid() {
		_, err := model.ParseChannel(string(ch))
		return false, err
	}
	n, ok := r.items[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	return n.MarkSent(ch, at), nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	return n.MarkRead(at), nil
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, n := range r.items {
		if n.RecipientID == recipientID && n.MarkRead(at) {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) ClaimUnsent(_ context.Context, ch model.Channel, before time.Time, limit int) (repository.DeliveryBatch, error) {
	if _, err := model.ParseChannel(string(ch)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	held := r.claimed[ch]
	var candidates []*model.Notification
	for id, n := range r.items {
		if _, ok := held[id]; ok || n.IsSent(ch) {
			continue
		}
		if ch == model.ChannelMailReminder && n.ReadIAN {
			continue
		}
		if !before.IsZero() && n.CreatedAt.After(before) {
			continue
		}
		candidates = append(candidates, n)
	}

	sortByCreated(candidates, false)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	b := &batch{repo: r, channel: ch, pending: make(map[uuid.UUID]time.Time)}
	for _, n := range candidates {
		held[n.ID] = struct{}{}
		b.notifications = append(b.notifications, clone(n))
	}
	return b, nil
}

func (r *NotificationRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *NotificationRepository) DeleteReadBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, n := range r.items {
		if n.ReadIAN && n.ReadAt != nil && n.ReadAt.Before(before) {
			delete(r.items, id)
			count++
		}
	}
	return count, nil
}

// batch buffers marks until Commit, like a transaction would.
type batch struct {
	repo          *NotificationRepository
	channel       model.Channel
	notifications []*model.Notification
	pending       map[uuid.UUID]time.Time
	closed        bool
}

func (b *batch) Notifications() []*model.Notification {
	return b.notifications
}

func (b *batch) MarkSent(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()

	if b.closed {
		return false, errBatchClosed
	}
	n, ok := b.repo.items[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if _, ok := b.pending[id]; ok || n.IsSent(b.channel) {
		return false, nil
	}
	b.pending[id] = at
	return true, nil
}

func (b *batch) Commit() error {
	return b.close(true)
}

func (b *batch) Rollback() error {
	return b.close(false)
}

func (b *batch) close(apply bool) error {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()

	if b.closed {
		return errBatchClosed
	}
	b.closed = true
	defer func() {
		for _, n := range b.notifications {
			delete(b.repo.claimed[b.channel], n.ID)
		}
	}()

	if apply {
		for id, at := range b.pending {
			// a row deleted meanwhile is simply gone
			if _, err := b.repo.markSentLocked(id, b.channel, at); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
	}
	return nil
}
