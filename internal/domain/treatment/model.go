package treatment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Family is the broad calculator category for a treatment.
type Family string

const (
	FamilyGlycerinatedByUnit Family = "GLYCERINATED_BY_UNIT"
	FamilyGlycerinatedInVial Family = "GLYCERINATED_IN_VIAL"
	FamilyAlxoid             Family = "ALXOID"
	FamilySublingual         Family = "SUBLINGUAL"
	FamilyGeneric            Family = "GENERIC"
)

// Alxoid subtypes. B.2 is dosed differently but reported under B.
const (
	SubtypeAlxoidA  = "ALXOID_A"
	SubtypeAlxoidB  = "ALXOID_B"
	SubtypeAlxoidB2 = "ALXOID_B.2"

	alxoidPrefix = "ALXOID_"
)

// Vial types for by-unit glycerinated treatments. The vial type selects the
// Evans dilution multiplier.
const (
	MotherVial = "mother vial"
	YellowVial = "yellow vial"
	GreenVial  = "green vial"
)

// TreatmentRecord is the durable per-patient treatment row. Exactly one
// exists per (patient, organization) pair; the pipeline only ever creates or
// updates it, never deletes.
type TreatmentRecord struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	OrganizationID    string     `db:"organization_id" json:"organization_id"`
	SiteID            *uuid.UUID `db:"site_id" json:"site_id,omitempty"`
	TreatmentFamily   Family     `db:"treatment_family" json:"treatment_family"`
	StartDate         time.Time  `db:"start_date" json:"start_date"`
	OriginalStartDate time.Time  `db:"original_start_date" json:"original_start_date"`
	LastAppliedDate   time.Time  `db:"last_applied_date" json:"last_applied_date"`
	LastEditedAt      time.Time  `db:"last_edited_at" json:"last_edited_at"`
	LastEditedBy      *uuid.UUID `db:"last_edited_by" json:"last_edited_by,omitempty"`
	// Allergens is denormalized at record-creation time only; later events
	// never rewrite it. The consolidated view unions log-entry allergens.
	Allergens []string `db:"allergens" json:"allergens"`
	Status    string   `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TreatmentLogEntry is one immutable row per processed treatment event.
type TreatmentLogEntry struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	RecordID            uuid.UUID  `db:"record_id" json:"record_id"`
	AppliedAt           time.Time  `db:"applied_at" json:"applied_at"`
	TreatmentFamily     Family     `db:"treatment_family" json:"treatment_family"`
	Subtype             string     `db:"subtype" json:"subtype"`
	ProductID           *string    `db:"product_id" json:"product_id,omitempty"`
	DoseCount           int        `db:"dose_count" json:"dose_count"`
	UnitCount           float64    `db:"unit_count" json:"unit_count"`
	VialNumbers         []int      `db:"vial_numbers" json:"vial_numbers"`
	Allergens           []string   `db:"allergens" json:"allergens"`
	ReactionOccurred    bool       `db:"reaction_occurred" json:"reaction_occurred"`
	ReactionDescription *string    `db:"reaction_description" json:"reaction_description,omitempty"`
	Observations        string     `db:"observations" json:"observations"`
	AppliedBy           *uuid.UUID `db:"applied_by" json:"applied_by,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// LogEntryView is the per-entry projection used by the consolidated view.
type LogEntryView struct {
	ID          uuid.UUID `json:"id"`
	AppliedAt   time.Time `json:"applied_at"`
	Family      Family    `json:"treatment_family"`
	Subtype     string    `json:"subtype"`
	DoseCount   int       `json:"dose_count"`
	UnitCount   float64   `json:"unit_count"`
	VialNumbers []int     `json:"vial_numbers"`
	Allergens   []string  `json:"allergens"`
	HadReaction bool      `json:"had_reaction"`
	Reaction    string    `json:"reaction,omitempty"`
}

// ConsolidatedView is the read-time aggregation of a record and its log
// history: unique allergens and unique non-empty reaction descriptions
// across all entries. It is derived on read, never persisted.
type ConsolidatedView struct {
	Record    *TreatmentRecord `json:"record"`
	Entries   []LogEntryView   `json:"entries"`
	Allergens []string         `json:"allergens"`
	Reactions []string         `json:"reactions"`
}

// Prefill is the normalized most-recent-treatment data used to pre-populate
// a new-treatment form.
type Prefill struct {
	Family       Family   `json:"treatment_family"`
	Subtype      string   `json:"subtype"`
	UnitCount    float64  `json:"unit_count"`
	DoseCount    int      `json:"dose_count"`
	Allergens    []string `json:"allergens"`
	VialNumbers  []int    `json:"vial_numbers"`
	Observations string   `json:"observations"`
}

// EventItem is one line item on an incoming treatment event.
type EventItem struct {
	ProductID string `json:"product_id"`
}

// TreatmentAppliedEvent is the typed payload for a "treatment applied"
// signal. The family hint comes from an upstream inventory/catalog lookup
// and outranks the subtype string, which may be stale.
type TreatmentAppliedEvent struct {
	PatientID           uuid.UUID   `json:"patient_id"`
	OrganizationID      string      `json:"organization_id"`
	AppliedBy           *uuid.UUID  `json:"applied_by,omitempty"`
	AppliedAt           time.Time   `json:"applied_at"`
	FamilyHint          string      `json:"family_hint"`
	Subtype             string      `json:"subtype"`
	UnitCount           float64     `json:"unit_count"`
	DoseCount           int         `json:"dose_count"`
	Allergens           []string    `json:"allergens"`
	VialText            string      `json:"vial_text"`
	Items               []EventItem `json:"items"`
	UsageID             *uuid.UUID  `json:"usage_id,omitempty"`
	ReactionOccurred    bool        `json:"reaction_occurred"`
	ReactionDescription string      `json:"reaction_description"`
	Observations        string      `json:"observations"`
}

// DedupKey builds the lock key serializing concurrent processing of one
// patient's events within an organization.
func DedupKey(patientID uuid.UUID, orgID string) string {
	if orgID == "" {
		orgID = "default"
	}
	return fmt.Sprintf("treatment_%s_%s", patientID, orgID)
}
