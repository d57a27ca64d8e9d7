package model

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType tags the kind of entity a notification is about.
type ResourceType string

const (
	ResourceTypeWorkPackage ResourceType = "WorkPackage"
)

// ResourceRef is a polymorphic (type, id) reference. The type tag selects the
// resolver that can load the entity.
type ResourceRef struct {
	Type ResourceType `json:"type" validate:"required"`
	ID   uuid.UUID    `json:"id" validate:"required"`
}

func (r ResourceRef) IsZero() bool {
	return r.Type == "" && r.ID == uuid.Nil
}

func (r ResourceRef) String() string {
	return string(r.Type) + "#" + r.ID.String()
}

// Resource is what a resolver returns for a reference.
type Resource struct {
	Ref       ResourceRef `json:"ref"`
	ProjectID uuid.UUID   `json:"project_id"`
	Title     string      `json:"title"`
	StartDate *time.Time  `json:"start_date,omitempty"`
	DueDate   *time.Time  `json:"due_date,omitempty"`
}

// WorkPackage is the only resource variant the ledger resolves today.
type WorkPackage struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	ProjectID uuid.UUID  `json:"project_id" db:"project_id"`
	Subject   string     `json:"subject" db:"subject"`
	StartDate *time.Time `json:"start_date,omitempty" db:"start_date"`
	DueDate   *time.Time `json:"due_date,omitempty" db:"due_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (wp *WorkPackage) Ref() ResourceRef {
	return ResourceRef{Type: ResourceTypeWorkPackage, ID: wp.ID}
}

func (wp *WorkPackage) AsResource() *Resource {
	return &Resource{
		Ref:       wp.Ref(),
		ProjectID: wp.ProjectID,
		Title:     wp.Subject,
		StartDate: wp.StartDate,
		DueDate:   wp.DueDate,
	}
}
