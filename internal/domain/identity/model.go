package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is an application user able to record treatments. Each user belongs to
// at most one organization; events that arrive without an organization are
// attributed to the applying user's.
type User struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	FullName       string    `db:"full_name" json:"full_name"`
	OrganizationID *string   `db:"organization_id" json:"organization_id,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
