package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/authz"
	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
	"github.com/jwalitptl/notification-ledger/internal/resource"
	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
)

// Service manages who watches a work package. Every call is made on behalf
// of a viewer who must be able to see the work package's project.
type Service interface {
	List(ctx context.Context, viewerID, workPackageID uuid.UUID) ([]*model.Watcher, error)
	Add(ctx context.Context, viewerID, workPackageID, userID uuid.UUID) (*model.Watcher, error)
	Remove(ctx context.Context, viewerID, workPackageID, userID uuid.UUID) error
}

type Resolver interface {
	Resolve(ctx context.Context, ref model.ResourceRef) (*model.Resource, error)
}

type service struct {
	watchers  repository.WatcherRepository
	users     repository.UserRepository
	authz     authz.Authorizer
	resources Resolver
	log       *logger.Logger
}

func NewService(
	watchers repository.WatcherRepository,
	users repository.UserRepository,
	authorizer authz.Authorizer,
	resources Resolver,
	log *logger.Logger,
) Service {
	return &service{
		watchers:  watchers,
		users:     users,
		authz:     authorizer,
		resources: resources,
		log:       log,
	}
}

// workPackage resolves the work package and hides it from viewers outside
// its project.
func (s *service) workPackage(ctx context.Context, viewerID, id uuid.UUID) (*model.Resource, error) {
	res, err := s.resources.Resolve(ctx, model.ResourceRef{Type: model.ResourceTypeWorkPackage, ID: id})
	if errors.Is(err, resource.ErrResourceNotFound) {
		return nil, apperrors.NewNotFound("work package", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	ok, err := s.authz.CanView(ctx, viewerID, res.ProjectID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !ok {
		return nil, apperrors.NewNotFound("work package", nil)
	}
	return res, nil
}

func (s *service) List(ctx context.Context, viewerID, workPackageID uuid.UUID) ([]*model.Watcher, error) {
	res, err := s.workPackage(ctx, viewerID, workPackageID)
	if err != nil {
		return nil, err
	}

	watchers, err := s.watchers.List(ctx, res.Ref)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return watchers, nil
}

func (s *service) Add(ctx context.Context, viewerID, workPackageID, userID uuid.UUID) (*model.Watcher, error) {
	res, err := s.workPackage(ctx, viewerID, workPackageID)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.Get(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", err)
		}
		return nil, apperrors.NewInternal(err)
	}

	ok, err := s.authz.CanView(ctx, userID, res.ProjectID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !ok {
		return nil, apperrors.NewBadRequest("user is not a member of the project", nil)
	}

	w := &model.Watcher{
		ID:        uuid.New(),
		Resource:  res.Ref,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.watchers.Add(ctx, w); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	s.log.Debug("Watcher added", "resource", res.Ref.String(), "user_id", userID.String())
	return w, nil
}

func (s *service) Remove(ctx context.Context, viewerID, workPackageID, userID uuid.UUID) error {
	res, err := s.workPackage(ctx, viewerID, workPackageID)
	if err != nil {
		return err
	}

	err = s.watchers.Remove(ctx, res.Ref, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("watcher", err)
	}
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}
