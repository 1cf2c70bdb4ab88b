package treatment

import (
	"context"

	"github.com/google/uuid"
)

// RecordRepository persists the one-per-patient treatment record.
type RecordRepository interface {
	// GetByPatientOrg returns the patient's record in the organization, or
	// (nil, nil) when none exists yet.
	GetByPatientOrg(ctx context.Context, patientID uuid.UUID, orgID string) (*TreatmentRecord, error)
	Create(ctx context.Context, rec *TreatmentRecord) error
	Update(ctx context.Context, rec *TreatmentRecord) error
}

// LogRepository persists the append-only treatment log.
type LogRepository interface {
	Create(ctx context.Context, entry *TreatmentLogEntry) error
	// ListByRecord returns all entries for a record, newest first.
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*TreatmentLogEntry, error)
	// ListByRecordPage returns a page of entries, newest first, plus the
	// total count.
	ListByRecordPage(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]*TreatmentLogEntry, int, error)
	// LatestByRecord returns the most recent entry, or (nil, nil) when the
	// record has no entries.
	LatestByRecord(ctx context.Context, recordID uuid.UUID) (*TreatmentLogEntry, error)
}
