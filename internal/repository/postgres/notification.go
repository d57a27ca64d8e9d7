package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
)

var notificationColumns = []string{
	"id", "reason", "recipient_id", "actor_id", "project_id", "journal_id",
	"resource_type", "resource_id",
	"read_ian", "read_at",
	"mail_reminder_sent", "mail_reminder_sent_at",
	"mail_alert_sent", "mail_alert_sent_at",
	"created_at", "updated_at",
}

var selectNotifications = "SELECT " + strings.Join(notificationColumns, ", ") + " FROM notifications"

type notificationRow struct {
	ID                 uuid.UUID    `db:"id"`
	Reason             model.Reason `db:"reason"`
	RecipientID        uuid.UUID    `db:"recipient_id"`
	ActorID            uuid.UUID    `db:"actor_id"`
	ProjectID          uuid.UUID    `db:"project_id"`
	JournalID          uuid.UUID    `db:"journal_id"`
	ResourceType       string       `db:"resource_type"`
	ResourceID         uuid.UUID    `db:"resource_id"`
	ReadIAN            bool         `db:"read_ian"`
	ReadAt             *time.Time   `db:"read_at"`
	MailReminderSent   bool         `db:"mail_reminder_sent"`
	MailReminderSentAt *time.Time   `db:"mail_reminder_sent_at"`
	MailAlertSent      bool         `db:"mail_alert_sent"`
	MailAlertSentAt    *time.Time   `db:"mail_alert_sent_at"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

func (r notificationRow) toModel() *model.Notification {
	return &model.Notification{
		ID:                 r.ID,
		Reason:             r.Reason,
		RecipientID:        r.RecipientID,
		ActorID:            r.ActorID,
		ProjectID:          r.ProjectID,
		JournalID:          r.JournalID,
		Resource:           model.ResourceRef{Type: model.ResourceType(r.ResourceType), ID: r.ResourceID},
		ReadIAN:            r.ReadIAN,
		ReadAt:             r.ReadAt,
		MailReminderSent:   r.MailReminderSent,
		MailReminderSentAt: r.MailReminderSentAt,
		MailAlertSent:      r.MailAlertSent,
		MailAlertSentAt:    r.MailAlertSentAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func notificationArgs(n *model.Notification) []interface{} {
	return []interface{}{
		n.ID, n.Reason, n.RecipientID, n.ActorID, n.ProjectID, n.JournalID,
		string(n.Resource.Type), n.Resource.ID,
		n.ReadIAN, n.ReadAt,
		n.MailReminderSent, n.MailReminderSentAt,
		n.MailAlertSent, n.MailAlertSentAt,
		n.CreatedAt, n.UpdatedAt,
	}
}

func toModels(rows []notificationRow) []*model.Notification {
	out := make([]*model.Notification, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}

// channelColumns returns the flag and timestamp columns of a channel. Column
// names never come from user input.
func channelColumns(ch model.Channel) (flag, at string, err error) {
	switch ch {
	case model.ChannelMailReminder:
		return "mail_reminder_sent", "mail_reminder_sent_at", nil
	case model.ChannelMailAlert:
		return "mail_alert_sent", "mail_alert_sent_at", nil
	}
	return "", "", fmt.Errorf("unknown channel %q", ch)
}

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) (err error) {
	defer r.observe("notification_create", time.Now(), &err)

	placeholders := make([]string, len(notificationColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO notifications (%s) VALUES (%s)",
		strings.Join(notificationColumns, ", "), strings.Join(placeholders, ", "))

	if _, err = r.db.ExecContext(ctx, query, notificationArgs(n)...); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// CreateBatch streams rows with COPY inside one transaction.
func (r *notificationRepository) CreateBatch(ctx context.Context, ns []*model.Notification) (err error) {
	if len(ns) == 0 {
		return nil
	}
	defer r.observe("notification_create_batch", time.Now(), &err)

	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("notifications", notificationColumns...))
		if err != nil {
			return err
		}
		for _, n := range ns {
			if _, err := stmt.ExecContext(ctx, notificationArgs(n)...); err != nil {
				stmt.Close()
				return err
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return err
		}
		return stmt.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (n *model.Notification, err error) {
	defer r.observe("notification_get", time.Now(), &err)

	var row notificationRow
	if err = r.db.GetContext(ctx, &row, selectNotifications+" WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

func (r *notificationRepository) ListForRecipient(ctx context.Context, recipientID uuid.UUID, filter model.NotificationFilter) (ns []*model.Notification, err error) {
	defer r.observe("notification_list_recipient", time.Now(), &err)

	query, args := recipientQuery(recipientID, filter)

	var rows []notificationRow
	if err = r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return toModels(rows), nil
}

// recipientQuery builds the listing query. A zero limit returns every row.
func recipientQuery(recipientID uuid.UUID, filter model.NotificationFilter) (string, []interface{}) {
	query := selectNotifications + " WHERE recipient_id = $1"
	args := []interface{}{recipientID}

	if filter.Reason != nil {
		args = append(args, *filter.Reason)
		query += fmt.Sprintf(" AND reason = $%d", len(args))
	}
	if filter.UnreadOnly {
		query += " AND read_ian = FALSE"
	}

	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func (r *notificationRepository) ListUnsentMailReminders(ctx context.Context, before time.Time) (ns []*model.Notification, err error) {
	defer r.observe("notification_list_unsent_reminders", time.Now(), &err)

	query := selectNotifications + `
		WHERE mail_reminder_sent = FALSE
		AND read_ian = FALSE
		AND created_at <= $1
		ORDER BY created_at, id`

	var rows []notificationRow
	if err = r.db.SelectContext(ctx, &rows, query, before); err != nil {
		return nil, fmt.Errorf("failed to list unsent reminders: %w", err)
	}
	return toModels(rows), nil
}

func (r *notificationRepository) ListUnsentMailAlerts(ctx context.Context) (ns []*model.Notification, err error) {
	defer r.observe("notification_list_unsent_alerts", time.Now(), &err)

	query := selectNotifications + " WHERE mail_alert_sent = FALSE ORDER BY created_at, id"

	var rows []notificationRow
	if err = r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list unsent alerts: %w", err)
	}
	return toModels(rows), nil
}

// markSent is the compare-and-set shared by the repository and claimed
// batches. It tells an already-sent row apart from a missing one.
func markSent(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, ch model.Channel, at time.Time) (bool, error) {
	flag, atCol, err := channelColumns(ch)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(
		"UPDATE notifications SET %s = TRUE, %s = $2, updated_at = $2 WHERE id = $1 AND %s = FALSE",
		flag, atCol, flag,
	)
	res, err := q.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s sent: %w", ch, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	return false, exists(ctx, q, id)
}

func exists(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) error {
	var found bool
	if err := sqlx.GetContext(ctx, q, &found, "SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)", id); err != nil {
		return fmt.Errorf("failed to check notification: %w", err)
	}
	if !found {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, id uuid.UUID, ch model.Channel, at time.Time) (changed bool, err error) {
	defer r.observe("notification_mark_sent", time.Now(), &err)
	return markSent(ctx, r.db, id, ch, at)
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (changed bool, err error) {
	defer r.observe("notification_mark_read", time.Now(), &err)

	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET read_ian = TRUE, read_at = $2, updated_at = $2 WHERE id = $1 AND read_ian = FALSE",
		id, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	return false, exists(ctx, r.db, id)
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (n int64, err error) {
	defer r.observe("notification_mark_all_read", time.Now(), &err)

	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET read_ian = TRUE, read_at = $2, updated_at = $2 WHERE recipient_id = $1 AND read_ian = FALSE",
		recipientID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// ClaimUnsent opens a transaction and locks the oldest unsent rows of the
// channel with FOR UPDATE SKIP LOCKED.
func (r *notificationRepository) ClaimUnsent(ctx context.Context, ch model.Channel, before time.Time, limit int) (b repository.DeliveryBatch, err error) {
	defer r.observe("notification_claim", time.Now(), &err)

	flag, _, err := channelColumns(ch)
	if err != nil {
		return nil, err
	}

	query := selectNotifications + fmt.Sprintf(" WHERE %s = FALSE", flag)
	args := []interface{}{}
	if ch == model.ChannelMailReminder {
		query += " AND read_ian = FALSE"
	}
	if !before.IsZero() {
		args = append(args, before)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d FOR UPDATE SKIP LOCKED", len(args))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var rows []notificationRow
	if err = tx.SelectContext(ctx, &rows, query, args...); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to claim notifications: %w", err)
	}

	return &claimedBatch{tx: tx, channel: ch, notifications: toModels(rows)}, nil
}

func (r *notificationRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer r.observe("notification_delete", time.Now(), &err)

	res, err := r.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return rowsAffected(res)
}

func (r *notificationRepository) DeleteReadBefore(ctx context.Context, before time.Time) (n int64, err error) {
	defer r.observe("notification_delete_read", time.Now(), &err)

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE read_ian = TRUE AND read_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete read notifications: %w", err)
	}
	return res.RowsAffected()
}

type claimedBatch struct {
	tx            *sqlx.Tx
	channel       model.Channel
	notifications []*model.Notification
}

func (b *claimedBatch) Notifications() []*model.Notification {
	return b.notifications
}

func (b *claimedBatch) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return markSent(ctx, b.tx, id, b.channel, at)
}

func (b *claimedBatch) Commit() error {
	return b.tx.Commit()
}

func (b *claimedBatch) Rollback() error {
	return b.tx.Rollback()
}
