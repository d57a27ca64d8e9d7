package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/notification-ledger/internal/email"
	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
)

// ReminderDispatcher sends one digest per recipient covering every unread,
// unsent notification older than the reminder delay.
type ReminderDispatcher struct {
	dispatcher
}

func NewReminderDispatcher(deps Deps, config DispatcherConfig) *ReminderDispatcher {
	return &ReminderDispatcher{dispatcher: newDispatcher(deps, model.ChannelMailReminder, config)}
}

func (d *ReminderDispatcher) Name() string { return "mail_reminder_dispatcher" }

func (d *ReminderDispatcher) RunOnce(ctx context.Context) error {
	timer := prometheus.NewTimer(d.Metrics.DispatchLatency.WithLabelValues(string(d.channel)))
	defer timer.ObserveDuration()

	cutoff := d.Now().UTC().Add(-d.config.ReminderDelay)
	batch, err := d.claim(ctx, cutoff)
	if err != nil {
		return err
	}
	ns := batch.Notifications()
	if len(ns) == 0 {
		return d.finish(batch)
	}

	l, err := d.load(ctx, ns)
	if err != nil {
		_ = batch.Rollback()
		return err
	}

	order, groups := byRecipient(ns)
	digests := 0
	for _, recipientID := range order {
		sent, err := d.digest(ctx, batch, l.users[recipientID], groups[recipientID], l)
		if err != nil {
			_ = batch.Rollback()
			return err
		}
		if sent {
			digests++
		}
	}

	if err := d.finish(batch); err != nil {
		return err
	}
	d.Logger.Info("Reminder batch dispatched",
		"claimed", len(ns),
		"recipients", len(order),
		"digests", digests)
	return nil
}

// byRecipient groups notifications while keeping the claim order.
func byRecipient(ns []*model.Notification) ([]uuid.UUID, map[uuid.UUID][]*model.Notification) {
	var order []uuid.UUID
	groups := make(map[uuid.UUID][]*model.Notification)
	for _, n := range ns {
		if _, ok := groups[n.RecipientID]; !ok {
			order = append(order, n.RecipientID)
		}
		groups[n.RecipientID] = append(groups[n.RecipientID], n)
	}
	return order, groups
}

// digest mails one recipient's group and marks what it covered. Records the
// recipient can no longer see are marked without a mail. A failed send keeps
// the mailable records queued. Only a failure to mark is returned.
func (d *ReminderDispatcher) digest(
	ctx context.Context,
	batch repository.DeliveryBatch,
	to *model.User,
	group []*model.Notification,
	l loaded,
) (bool, error) {
	if !d.reachable(to) {
		return false, d.markAll(ctx, batch, group)
	}

	var (
		items    []email.Item
		mailable []*model.Notification
		consumed []*model.Notification
	)
	for _, n := range group {
		item, err := d.prepare(ctx, n, l)
		if errors.Is(err, errSkip) {
			d.Logger.Warn("Reminder left queued", "notification_id", n.ID.String(), "error", err.Error())
			continue
		}
		if item == nil {
			consumed = append(consumed, n)
			continue
		}
		items = append(items, *item)
		mailable = append(mailable, n)
	}

	if err := d.markAll(ctx, batch, consumed); err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}

	err := d.send(ctx, d.Composer.Digest(to, items))
	if errors.Is(err, email.ErrNoRecipient) {
		return false, d.markAll(ctx, batch, mailable)
	}
	if err != nil {
		d.Logger.Error(err, "Failed to send reminder digest",
			"recipient_id", to.ID.String(),
			"notifications", len(items))
		return false, nil
	}
	return true, d.markAll(ctx, batch, mailable)
}

func (d *ReminderDispatcher) markAll(ctx context.Context, batch repository.DeliveryBatch, ns []*model.Notification) error {
	for _, n := range ns {
		if err := d.mark(ctx, batch, n); err != nil {
			return err
		}
	}
	return nil
}
