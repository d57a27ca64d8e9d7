package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/authz"
	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
	"github.com/jwalitptl/notification-ledger/internal/resource"
	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
	"github.com/jwalitptl/notification-ledger/pkg/messaging"
	"github.com/jwalitptl/notification-ledger/pkg/metrics"
)

// EventCreated is the in-app event type published for each new notification.
const EventCreated = "notification.created"

// RecipientChannel is the broker channel carrying a recipient's in-app events.
func RecipientChannel(recipientID uuid.UUID) string {
	return "notifications:" + recipientID.String()
}

type Service interface {
	Create(ctx context.Context, params model.NotificationParams) (*model.Notification, error)
	Get(ctx context.Context, viewerID, id uuid.UUID) (*model.Notification, error)
	ListVisible(ctx context.Context, viewerID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error)
	MarkRead(ctx context.Context, viewerID, id uuid.UUID) (*model.Notification, error)
	MarkAllRead(ctx context.Context, viewerID uuid.UUID) (int64, error)
	NotifyWatchers(ctx context.Context, event model.JournalEvent) ([]*model.Notification, error)
}

// ResourceResolver is the part of the resource registry the service needs.
type ResourceResolver interface {
	Known(t model.ResourceType) bool
	Resolve(ctx context.Context, ref model.ResourceRef) (*model.Resource, error)
}

type Options struct {
	OrphanPolicy string
	Now          func() time.Time
}

type service struct {
	repo      repository.NotificationRepository
	watchers  repository.WatcherRepository
	authz     authz.Authorizer
	resources ResourceResolver
	broker    messaging.Broker
	metrics   *metrics.Metrics
	log       *logger.Logger
	orphans   string
	now       func() time.Time
}

func NewService(
	repo repository.NotificationRepository,
	watchers repository.WatcherRepository,
	authorizer authz.Authorizer,
	resources ResourceResolver,
	broker messaging.Broker,
	m *metrics.Metrics,
	log *logger.Logger,
	opts Options,
) Service {
	if opts.OrphanPolicy == "" {
		opts.OrphanPolicy = config.OrphanPolicyHide
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	return &service{
		repo:      repo,
		watchers:  watchers,
		authz:     authorizer,
		resources: resources,
		broker:    broker,
		metrics:   m,
		log:       log,
		orphans:   opts.OrphanPolicy,
		now:       opts.Now,
	}
}

func (s *service) Create(ctx context.Context, params model.NotificationParams) (*model.Notification, error) {
	n, err := model.NewNotification(params, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !s.resources.Known(n.Resource.Type) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown resource type %q", n.Resource.Type), resource.ErrUnknownType)
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to create notification: %w", err))
	}

	s.created(ctx, n)
	return n, nil
}

// created counts and announces a persisted notification. Publish failures
// never fail the write.
func (s *service) created(ctx context.Context, n *model.Notification) {
	s.metrics.NotificationsCreated.WithLabelValues(n.Reason.String()).Inc()

	msg := messaging.Message{Type: EventCreated, Payload: n}
	if err := s.broker.Publish(ctx, RecipientChannel(n.RecipientID), msg); err != nil {
		s.metrics.BrokerPublishes.WithLabelValues("error").Inc()
		s.log.Error(err, "Failed to publish notification event",
			"notification_id", n.ID.String(),
			"recipient_id", n.RecipientID.String())
		return
	}
	s.metrics.BrokerPublishes.WithLabelValues("ok").Inc()
}

func (s *service) Get(ctx context.Context, viewerID, id uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("notification", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	ok, err := s.visible(ctx, viewerID, n)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !ok {
		return nil, apperrors.NewNotFound("notification", nil)
	}
	return n, nil
}

// ListVisible returns the viewer's own notifications that the viewer may
// still see. Filtering happens after the page is loaded, so a page can come
// back shorter than its limit.
func (s *service) ListVisible(ctx context.Context, viewerID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error) {
	ns, err := s.repo.ListForRecipient(ctx, viewerID, filter)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	out := make([]*model.Notification, 0, len(ns))
	for _, n := range ns {
		ok, err := s.visible(ctx, viewerID, n)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// visible applies the recipient, authorization and orphan rules.
func (s *service) visible(ctx context.Context, viewerID uuid.UUID, n *model.Notification) (bool, error) {
	if n.RecipientID != viewerID {
		return false, nil
	}

	ok, err := s.authz.CanView(ctx, viewerID, n.ProjectID)
	if err != nil || !ok {
		return false, err
	}

	_, err = s.resources.Resolve(ctx, n.Resource)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, resource.ErrResourceNotFound), errors.Is(err, resource.ErrUnknownType):
		s.orphaned(ctx, n)
		return false, nil
	default:
		return false, fmt.Errorf("failed to resolve %s: %w", n.Resource, err)
	}
}

func (s *service) orphaned(ctx context.Context, n *model.Notification) {
	s.metrics.OrphansDetected.WithLabelValues(string(n.Resource.Type), s.orphans).Inc()
	if s.orphans != config.OrphanPolicyDelete {
		return
	}
	if err := s.repo.Delete(ctx, n.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Error(err, "Failed to delete orphaned notification", "notification_id", n.ID.String())
	}
}

func (s *service) MarkRead(ctx context.Context, viewerID, id uuid.UUID) (*model.Notification, error) {
	n, err := s.Get(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}

	changed, err := s.repo.MarkRead(ctx, id, s.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("notification", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !changed {
		return n, nil
	}

	s.metrics.NotificationsRead.Inc()
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return updated, nil
}

func (s *service) MarkAllRead(ctx context.Context, viewerID uuid.UUID) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, viewerID, s.now().UTC())
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}
	s.metrics.NotificationsRead.Add(float64(count))
	return count, nil
}

// NotifyWatchers fans a journal event out to the resource's watchers. The
// actor is skipped, as is every watcher who may no longer see the project.
func (s *service) NotifyWatchers(ctx context.Context, event model.JournalEvent) ([]*model.Notification, error) {
	if event.Resource.Type == "" || event.Resource.ID == uuid.Nil {
		return nil, apperrors.NewMissingReference("resource", model.ErrMissingReference)
	}
	if !s.resources.Known(event.Resource.Type) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown resource type %q", event.Resource.Type), resource.ErrUnknownType)
	}

	watchers, err := s.watchers.List(ctx, event.Resource)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	now := s.now().UTC()
	created := make([]*model.Notification, 0, len(watchers))
	for _, w := range watchers {
		if w.UserID == event.ActorID {
			continue
		}
		ok, err := s.authz.CanView(ctx, w.UserID, event.ProjectID)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if !ok {
			continue
		}

		n, err := model.NewNotification(model.NotificationParams{
			Reason:      model.ReasonWatched,
			RecipientID: w.UserID,
			ActorID:     event.ActorID,
			ProjectID:   event.ProjectID,
			JournalID:   event.JournalID,
			Resource:    event.Resource,
		}, now)
		if err != nil {
			return nil, err
		}
		created = append(created, n)
	}

	if err := s.repo.CreateBatch(ctx, created); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to create notifications: %w", err))
	}
	for _, n := range created {
		s.created(ctx, n)
	}

	s.log.Debug("Journal fanned out to watchers",
		"journal_id", event.JournalID.String(),
		"notifications", len(created))
	return created, nil
}
