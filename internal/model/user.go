package model

import (
	"github.com/google/uuid"
)

// User status constants
const (
	UserStatusActive = "active"
	UserStatusLocked = "locked"
)

// User is a recipient or actor as known to the identity store.
type User struct {
	Base
	Name   string `json:"name" db:"name"`
	Email  string `json:"email" db:"email"`
	Status string `json:"status" db:"status"`
}

func (u *User) Active() bool {
	return u.Status == UserStatusActive
}

// Member links a user to a project. Membership is what grants visibility.
type Member struct {
	ProjectID uuid.UUID `json:"project_id" db:"project_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
}
