package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/notification-ledger/internal/repository"
)

// Authorizer answers whether a viewer may see things that belong to a project.
type Authorizer interface {
	CanView(ctx context.Context, viewerID, projectID uuid.UUID) (bool, error)
}

// MembershipAuthorizer grants visibility to project members. Answers are
// cached for ttl, negative ones included.
type MembershipAuthorizer struct {
	members repository.MemberRepository
	cache   *cache.Cache
}

func NewMembershipAuthorizer(members repository.MemberRepository, ttl time.Duration) *MembershipAuthorizer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MembershipAuthorizer{
		members: members,
		cache:   cache.New(ttl, 2*ttl),
	}
}

func cacheKey(viewerID, projectID uuid.UUID) string {
	return projectID.String() + ":" + viewerID.String()
}

func (a *MembershipAuthorizer) CanView(ctx context.Context, viewerID, projectID uuid.UUID) (bool, error) {
	key := cacheKey(viewerID, projectID)
	if cached, found := a.cache.Get(key); found {
		return cached.(bool), nil
	}

	ok, err := a.members.IsMember(ctx, projectID, viewerID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	a.cache.Set(key, ok, cache.DefaultExpiration)
	return ok, nil
}

// Invalidate drops the cached answer for one viewer and project.
func (a *MembershipAuthorizer) Invalidate(viewerID, projectID uuid.UUID) {
	a.cache.Delete(cacheKey(viewerID, projectID))
}

// AllowAll is used by tooling that runs without a membership store.
type AllowAll struct{}

func (AllowAll) CanView(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return true, nil }
