package account

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the record store for accounts.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Update(ctx context.Context, a *Account) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Account, int, error)
}

// RoleAssigner manages role assignments for accounts.
type RoleAssigner interface {
	Assign(ctx context.Context, accountID uuid.UUID, roleCode string) (*RoleAssignment, error)
	Unassign(ctx context.Context, assignmentID uuid.UUID) error
	ListAssignments(ctx context.Context, accountID uuid.UUID) ([]*RoleAssignment, error)
}

// Inviter issues an activation invitation for a freshly created account.
type Inviter interface {
	Invite(ctx context.Context, a *Account) error
}
