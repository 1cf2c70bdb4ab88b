package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Usage is one recorded consumption of stock against a patient visit. The
// treatment pipeline enriches log entries from it and the reaction-correction
// endpoint updates it after the fact.
type Usage struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	PatientID           uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProductID           *string    `db:"product_id" json:"product_id,omitempty"`
	ProductName         string     `db:"product_name" json:"product_name"`
	Quantity            float64    `db:"quantity" json:"quantity"`
	UsedAt              time.Time  `db:"used_at" json:"used_at"`
	ReactionOccurred    bool       `db:"reaction_occurred" json:"reaction_occurred"`
	ReactionDescription *string    `db:"reaction_description" json:"reaction_description,omitempty"`
	RecordedBy          *uuid.UUID `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}
