package casedb

import (
	"context"
	"time"

	"github.com/coach-dss/coach/internal/errors"
)

// RoleOwner is the role of a case's creator. Only owners may delete a case.
const RoleOwner = "owner"

// ErrNotFound is returned by stores when a case, stakeholder or property
// does not exist.
var ErrNotFound = errors.New("not found")

// Case is a decision case.
type Case struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Stakeholder links a user to a case with a role.
type Stakeholder struct {
	CaseID string `json:"case_id" db:"case_id"`
	UserID string `json:"user_id" db:"user_id"`
	Role   string `json:"role" db:"role"`
}

// Alternative is one option under consideration in a case.
type Alternative struct {
	ID     string `json:"id" db:"id"`
	CaseID string `json:"case_id" db:"case_id"`
	Title  string `json:"title" db:"title"`
}

// CaseInfo is a case with everything attached to it.
type CaseInfo struct {
	Case
	Stakeholders []Stakeholder     `json:"stakeholders"`
	Alternatives []Alternative     `json:"alternatives"`
	Properties   map[string]string `json:"properties"`
}

// Store captures the persistence surface needed by the case database.
type Store interface {
	// CreateCase stores c and makes owner its first stakeholder.
	CreateCase(ctx context.Context, c Case, owner string) error
	GetCase(ctx context.Context, id string) (Case, error)
	DeleteCase(ctx context.Context, id string) error
	UserCases(ctx context.Context, userID string) ([]Case, error)

	// Role returns the user's role in the case, or ErrNotFound.
	Role(ctx context.Context, caseID, userID string) (string, error)
	// SetStakeholder adds a stakeholder or changes its role.
	SetStakeholder(ctx context.Context, s Stakeholder) error
	Stakeholders(ctx context.Context, caseID string) ([]Stakeholder, error)

	AddAlternative(ctx context.Context, a Alternative) error
	Alternatives(ctx context.Context, caseID string) ([]Alternative, error)

	SetProperty(ctx context.Context, caseID, name, value string) error
	Property(ctx context.Context, caseID, name string) (string, error)
	Properties(ctx context.Context, caseID string) (map[string]string, error)

	Ping(ctx context.Context) error
	Close() error
}
