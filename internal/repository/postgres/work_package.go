package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/repository"
)

type workPackageRepository struct {
	BaseRepository
}

func NewWorkPackageRepository(base BaseRepository) repository.WorkPackageRepository {
	return &workPackageRepository{base}
}

func (r *workPackageRepository) Create(ctx context.Context, wp *model.WorkPackage) (err error) {
	defer r.observe("work_package_create", time.Now(), &err)

	if wp.ID == uuid.Nil {
		wp.ID = uuid.New()
	}
	wp.CreatedAt = time.Now()
	wp.UpdatedAt = wp.CreatedAt

	query := `
		INSERT INTO work_packages (id, project_id, subject, start_date, due_date, created_at, updated_at)
		VALUES (:id, :project_id, :subject, :start_date, :due_date, :created_at, :updated_at)
	`
	if _, err = r.db.NamedExecContext(ctx, query, wp); err != nil {
		return fmt.Errorf("failed to create work package: %w", err)
	}
	return nil
}

func (r *workPackageRepository) Get(ctx context.Context, id uuid.UUID) (wp *model.WorkPackage, err error) {
	defer r.observe("work_package_get", time.Now(), &err)

	var row model.WorkPackage
	query := `
		SELECT id, project_id, subject, start_date, due_date, created_at, updated_at
		FROM work_packages WHERE id = $1
	`
	if err = r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (r *workPackageRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer r.observe("work_package_delete", time.Now(), &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM work_packages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete work package: %w", err)
	}
	return rowsAffected(res)
}
