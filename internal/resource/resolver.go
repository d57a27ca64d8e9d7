package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
)

var (
	// ErrResourceNotFound means the reference is well formed but the entity is gone.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrUnknownType means no resolver is registered for the type tag.
	ErrUnknownType = errors.New("unknown resource type")
)

// Resolver loads one kind of resource.
type Resolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (*model.Resource, error)
}

type ResolverFunc func(ctx context.Context, id uuid.UUID) (*model.Resource, error)

func (f ResolverFunc) Resolve(ctx context.Context, id uuid.UUID) (*model.Resource, error) {
	return f(ctx, id)
}

// Registry dispatches a reference to the resolver registered for its tag.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[model.ResourceType]Resolver
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[model.ResourceType]Resolver)}
}

func (r *Registry) Register(t model.ResourceType, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[t] = resolver
}

func (r *Registry) Known(t model.ResourceType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolvers[t]
	return ok
}

func (r *Registry) Resolve(ctx context.Context, ref model.ResourceRef) (*model.Resource, error) {
	r.mu.RLock()
	resolver, ok := r.resolvers[ref.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, ref.Type)
	}
	return resolver.Resolve(ctx, ref.ID)
}

// WorkPackageResolver resolves WorkPackage references from the work package store.
type WorkPackageResolver struct {
	repo repository.WorkPackageRepository
}

func NewWorkPackageResolver(repo repository.WorkPackageRepository) *WorkPackageResolver {
	return &WorkPackageResolver{repo: repo}
}

func (w *WorkPackageResolver) Resolve(ctx context.Context, id uuid.UUID) (*model.Resource, error) {
	wp, err := w.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: WorkPackage#%s", ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return wp.AsResource(), nil
}

// NewDefaultRegistry registers every resolver the ledger ships with.
func NewDefaultRegistry(workPackages repository.WorkPackageRepository) *Registry {
	r := NewRegistry()
	r.Register(model.ResourceTypeWorkPackage, NewWorkPackageResolver(workPackages))
	return r
}
