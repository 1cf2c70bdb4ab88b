package inventory

import (
	"context"

	"github.com/google/uuid"
)

type UsageRepository interface {
	// GetByID returns the usage, or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Usage, error)
	// UpdateReaction rewrites the reaction fields on an existing usage.
	UpdateReaction(ctx context.Context, id uuid.UUID, occurred bool, description *string) error
}
