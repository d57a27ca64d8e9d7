package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
)

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) (err error) {
	defer r.observe("user_create", time.Now(), &err)

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Status == "" {
		user.Status = model.UserStatusActive
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, name, email, status, created_at, updated_at)
		VALUES (:id, :name, :email, :status, :created_at, :updated_at)
	`
	if _, err = r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (u *model.User, err error) {
	defer r.observe("user_get", time.Now(), &err)

	var user model.User
	query := `SELECT id, name, email, status, created_at, updated_at FROM users WHERE id = $1`
	if err = r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) GetMany(ctx context.Context, ids []uuid.UUID) (users []*model.User, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	defer r.observe("user_get_many", time.Now(), &err)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query := `SELECT id, name, email, status, created_at, updated_at FROM users WHERE id = ANY($1::uuid[])`
	if err = r.db.SelectContext(ctx, &users, query, pq.StringArray(keys)); err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}
