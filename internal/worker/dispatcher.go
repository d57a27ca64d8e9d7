package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/authz"
	"github.com/jwalitptl/notification-ledger/internal/email"
	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
	"github.com/jwalitptl/notification-ledger/internal/resource"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
	"github.com/jwalitptl/notification-ledger/pkg/metrics"
	"github.com/jwalitptl/notification-ledger/pkg/worker"
)

type DispatcherConfig struct {
	BatchSize     int
	RetryAttempts int
	RetryDelay    time.Duration
	// ReminderDelay is how old an unsent reminder must be before it is mailed.
	ReminderDelay time.Duration
}

func (c DispatcherConfig) validate() {
	if c.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if c.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if c.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if c.ReminderDelay < 0 {
		panic("ReminderDelay must not be negative")
	}
}

type Resolver interface {
	Resolve(ctx context.Context, ref model.ResourceRef) (*model.Resource, error)
}

// Deps are shared by both mail dispatchers.
type Deps struct {
	Notifications repository.NotificationRepository
	Users         repository.UserRepository
	Authorizer    authz.Authorizer
	Resources     Resolver
	Mailer        email.Service
	Composer      email.Composer
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// dispatcher holds what the alert and reminder dispatchers have in common:
// claiming a batch, loading mail context and flipping flags once a send
// succeeded.
type dispatcher struct {
	Deps
	channel model.Channel
	config  DispatcherConfig
}

func newDispatcher(deps Deps, channel model.Channel, config DispatcherConfig) dispatcher {
	config.validate()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return dispatcher{Deps: deps, channel: channel, config: config}
}

// loaded holds the users referenced by a claimed batch.
type loaded struct {
	users map[uuid.UUID]*model.User
}

// load fetches recipients and actors of a batch in one round trip.
func (d *dispatcher) load(ctx context.Context, ns []*model.Notification) (loaded, error) {
	seen := make(map[uuid.UUID]struct{}, 2*len(ns))
	ids := make([]uuid.UUID, 0, 2*len(ns))
	for _, n := range ns {
		for _, id := range []uuid.UUID{n.RecipientID, n.ActorID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	users, err := d.Users.GetMany(ctx, ids)
	if err != nil {
		return loaded{}, fmt.Errorf("failed to load users: %w", err)
	}
	out := loaded{users: make(map[uuid.UUID]*model.User, len(users))}
	for _, u := range users {
		out.users[u.ID] = u
	}
	return out, nil
}

// errSkip marks a record that must stay queued for the next pass.
var errSkip = errors.New("skip")

// prepare turns a notification into a mail item. It returns (nil, nil) when
// the recipient may no longer see the resource; such records are consumed
// without a mail.
func (d *dispatcher) prepare(ctx context.Context, n *model.Notification, l loaded) (*email.Item, error) {
	ok, err := d.Authorizer.CanView(ctx, n.RecipientID, n.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errSkip, err)
	}
	if !ok {
		return nil, nil
	}

	res, err := d.Resources.Resolve(ctx, n.Resource)
	switch {
	case errors.Is(err, resource.ErrResourceNotFound), errors.Is(err, resource.ErrUnknownType):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %v", errSkip, err)
	}

	return &email.Item{Notification: n, Resource: res, Actor: l.users[n.ActorID]}, nil
}

// send hands a message to the mail transport with retries.
// reachable reports whether mail can go to u at all. Records of unreachable
// recipients are consumed without mail. A missing address is counted.
func (d *dispatcher) reachable(u *model.User) bool {
	if u == nil || !u.Active() {
		return false
	}
	if u.Email == "" {
		d.Metrics.Undeliverable.WithLabelValues(string(d.channel)).Inc()
		d.Logger.Warn("Recipient has no email address", "user_id", u.ID.String(), "channel", string(d.channel))
		return false
	}
	return true
}

// send retries transient transport errors. A message without a recipient
// fails once with email.ErrNoRecipient.
func (d *dispatcher) send(ctx context.Context, msg email.Message) error {
	if msg.To == "" {
		d.Metrics.Undeliverable.WithLabelValues(string(d.channel)).Inc()
		return email.ErrNoRecipient
	}
	err := worker.Retry(ctx, d.config.RetryAttempts, d.config.RetryDelay, func() error {
		return d.Mailer.Send(ctx, msg)
	})
	if err != nil {
		d.Metrics.MailsFailed.WithLabelValues(string(d.channel)).Inc()
		return err
	}
	d.Metrics.MailsSent.WithLabelValues(string(d.channel)).Inc()
	return nil
}

// mark flips the channel flag inside the claimed batch.
func (d *dispatcher) mark(ctx context.Context, batch repository.DeliveryBatch, n *model.Notification) error {
	changed, err := batch.MarkSent(ctx, n.ID, d.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark %s sent on %s: %w", n.ID, d.channel, err)
	}
	if !changed {
		d.Metrics.AlreadySent.WithLabelValues(string(d.channel)).Inc()
	}
	return nil
}

// claim opens a batch and records the queue size. The caller must end the
// batch with finish.
func (d *dispatcher) claim(ctx context.Context, before time.Time) (repository.DeliveryBatch, error) {
	batch, err := d.Notifications.ClaimUnsent(ctx, d.channel, before, d.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s batch: %w", d.channel, err)
	}
	d.Metrics.DispatchQueueSize.WithLabelValues(string(d.channel)).Set(float64(len(batch.Notifications())))
	return batch, nil
}

// finish commits the marks made so far. A commit failure leaves every record
// of the batch queued, so mails already handed off are sent again on the next
// pass.
func (d *dispatcher) finish(batch repository.DeliveryBatch) error {
	if err := batch.Commit(); err != nil {
		_ = batch.Rollback()
		return fmt.Errorf("failed to commit %s batch: %w", d.channel, err)
	}
	return nil
}
