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

type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]model.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uuid.UUID]model.User)}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Status == "" {
		user.Status = model.UserStatusActive
	}
	for _, u := range r.users {
		if u.Email == user.Email && u.ID != user.ID {
			return errors.New("email already taken")
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepository) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetMany(_ context.Context, ids []uuid.UUID) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, &u)
		}
	}
	return out, nil
}

type MemberRepository struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewMemberRepository() *MemberRepository {
	return &MemberRepository{projects: make(map[uuid.UUID]map[uuid.UUID]struct{})}
}

var _ repository.MemberRepository = (*MemberRepository)(nil)

func (r *MemberRepository) Add(_ context.Context, m model.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.projects[m.ProjectID]
	if !ok {
		users = make(map[uuid.UUID]struct{})
		r.projects[m.ProjectID] = users
	}
	users[m.UserID] = struct{}{}
	return nil
}

func (r *MemberRepository) IsMember(_ context.Context, projectID, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.projects[projectID][userID]
	return ok, nil
}

func (r *MemberRepository) ProjectsOf(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []uuid.UUID
	for projectID, users := range r.projects {
		if _, ok := users[userID]; ok {
			out = append(out, projectID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

type WatcherRepository struct {
	mu       sync.RWMutex
	watchers map[model.ResourceRef][]*model.Watcher
}

func NewWatcherRepository() *WatcherRepository {
	return &WatcherRepository{watchers: make(map[model.ResourceRef][]*model.Watcher)}
}

var _ repository.WatcherRepository = (*WatcherRepository)(nil)

func (r *WatcherRepository) Add(_ context.Context, w *model.Watcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.watchers[w.Resource] {
		if existing.UserID == w.UserID {
			return nil
		}
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	c := *w
	r.watchers[w.Resource] = append(r.watchers[w.Resource], &c)
	return nil
}

func (r *WatcherRepository) Remove(_ context.Context, resource model.ResourceRef, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.watchers[resource]
	for i, w := range list {
		if w.UserID == userID {
			r.watchers[resource] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *WatcherRepository) List(_ context.Context, resource model.ResourceRef) ([]*model.Watcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Watcher, 0, len(r.watchers[resource]))
	for _, w := range r.watchers[resource] {
		c := *w
		out = append(out, &c)
	}
	return out, nil
}

func (r *WatcherRepository) IsWatching(_ context.Context, resource model.ResourceRef, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.watchers[resource] {
		if w.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

type WorkPackageRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]model.WorkPackage
}

func NewWorkPackageRepository() *WorkPackageRepository {
	return &WorkPackageRepository{items: make(map[uuid.UUID]model.WorkPackage)}
}

var _ repository.WorkPackageRepository = (*WorkPackageRepository)(nil)

func (r *WorkPackageRepository) Create(_ context.Context, wp *model.WorkPackage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wp.ID == uuid.Nil {
		wp.ID = uuid.New()
	}
	wp.CreatedAt = time.Now()
	wp.UpdatedAt = wp.CreatedAt
	r.items[wp.ID] = *wp
	return nil
}

func (r *WorkPackageRepository) Get(_ context.Context, id uuid.UUID) (*model.WorkPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wp, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &wp, nil
}

func (r *WorkPackageRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}
