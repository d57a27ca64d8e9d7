package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
)

type memberRepository struct {
	BaseRepository
}

func NewMemberRepository(base BaseRepository) repository.MemberRepository {
	return &memberRepository{base}
}

func (r *memberRepository) Add(ctx context.Context, m model.Member) (err error) {
	defer r.observe("member_add", time.Now(), &err)

	query := `
		INSERT INTO members (project_id, user_id) VALUES ($1, $2)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`
	if _, err = r.db.ExecContext(ctx, query, m.ProjectID, m.UserID); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (r *memberRepository) IsMember(ctx context.Context, projectID, userID uuid.UUID) (ok bool, err error) {
	defer r.observe("member_check", time.Now(), &err)

	query := `SELECT EXISTS (SELECT 1 FROM members WHERE project_id = $1 AND user_id = $2)`
	if err = r.db.GetContext(ctx, &ok, query, projectID, userID); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

func (r *memberRepository) ProjectsOf(ctx context.Context, userID uuid.UUID) (ids []uuid.UUID, err error) {
	defer r.observe("member_projects", time.Now(), &err)

	query := `SELECT project_id FROM members WHERE user_id = $1 ORDER BY project_id`
	if err = r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return ids, nil
}
