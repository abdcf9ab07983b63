package invitation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("invitation not found")
	ErrEmailRequired = errors.New("email is required")

	// ErrSearchUnsupported is returned by stores that cannot list
	// invitations by account.
	ErrSearchUnsupported = errors.New("invitation search not supported")
)

type Repository interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error)
	Update(ctx context.Context, inv *Invitation) error
	Delete(ctx context.Context, id uuid.UUID) error
	// SearchByAccount returns the account's invitations, newest first.
	SearchByAccount(ctx context.Context, accountID uuid.UUID) ([]*Invitation, error)
}
