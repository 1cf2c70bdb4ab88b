package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	// GetByID returns the user, or (nil, nil) when unknown.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// OrganizationForUser returns the user's organization id, or "" when the
	// user is unknown or unassigned.
	OrganizationForUser(ctx context.Context, userID uuid.UUID) (string, error)
}
