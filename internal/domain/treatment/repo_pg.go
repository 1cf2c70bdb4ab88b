package treatment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/immunotrack/immunotrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordCols = `id, patient_id, organization_id, site_id, treatment_family,
	start_date, original_start_date, last_applied_date, last_edited_at, last_edited_by,
	allergens, status, created_at, updated_at`

func scanRecord(row pgx.Row) (*TreatmentRecord, error) {
	var rec TreatmentRecord
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.OrganizationID, &rec.SiteID, &rec.TreatmentFamily,
		&rec.StartDate, &rec.OriginalStartDate, &rec.LastAppliedDate, &rec.LastEditedAt, &rec.LastEditedBy,
		&rec.Allergens, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

func (r *recordRepoPG) GetByPatientOrg(ctx context.Context, patientID uuid.UUID, orgID string) (*TreatmentRecord, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM treatment_record WHERE patient_id = $1 AND organization_id = $2`,
		patientID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *TreatmentRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO treatment_record (id, patient_id, organization_id, site_id, treatment_family,
			start_date, original_start_date, last_applied_date, last_edited_at, last_edited_by,
			allergens, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.PatientID, rec.OrganizationID, rec.SiteID, rec.TreatmentFamily,
		rec.StartDate, rec.OriginalStartDate, rec.LastAppliedDate, rec.LastEditedAt, rec.LastEditedBy,
		rec.Allergens, rec.Status)
	return err
}

// Update writes only the fields that move after creation. Family, start
// dates, allergens, and status are immutable once the record exists.
func (r *recordRepoPG) Update(ctx context.Context, rec *TreatmentRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE treatment_record SET last_applied_date=$2, last_edited_at=$3,
			last_edited_by=$4, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.LastAppliedDate, rec.LastEditedAt, rec.LastEditedBy)
	return err
}

type logRepoPG struct{ pool *pgxpool.Pool }

func NewLogRepoPG(pool *pgxpool.Pool) LogRepository {
	return &logRepoPG{pool: pool}
}

func (r *logRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const logCols = `id, record_id, applied_at, treatment_family, subtype, product_id,
	dose_count, unit_count, vial_numbers, allergens,
	reaction_occurred, reaction_description, observations, applied_by, created_at`

func scanLogEntry(row pgx.Row) (*TreatmentLogEntry, error) {
	var e TreatmentLogEntry
	err := row.Scan(&e.ID, &e.RecordID, &e.AppliedAt, &e.TreatmentFamily, &e.Subtype, &e.ProductID,
		&e.DoseCount, &e.UnitCount, &e.VialNumbers, &e.Allergens,
		&e.ReactionOccurred, &e.ReactionDescription, &e.Observations, &e.AppliedBy, &e.CreatedAt)
	return &e, err
}

func (r *logRepoPG) Create(ctx context.Context, e *TreatmentLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO treatment_log_entry (id, record_id, applied_at, treatment_family, subtype, product_id,
			dose_count, unit_count, vial_numbers, allergens,
			reaction_occurred, reaction_description, observations, applied_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.RecordID, e.AppliedAt, e.TreatmentFamily, e.Subtype, e.ProductID,
		e.DoseCount, e.UnitCount, e.VialNumbers, e.Allergens,
		e.ReactionOccurred, e.ReactionDescription, e.Observations, e.AppliedBy)
	return err
}

func (r *logRepoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*TreatmentLogEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+logCols+` FROM treatment_log_entry WHERE record_id = $1 ORDER BY applied_at DESC, created_at DESC`,
		recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*TreatmentLogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *logRepoPG) ListByRecordPage(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]*TreatmentLogEntry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM treatment_log_entry WHERE record_id = $1`, recordID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+logCols+` FROM treatment_log_entry WHERE record_id = $1
		 ORDER BY applied_at DESC, created_at DESC LIMIT $2 OFFSET $3`,
		recordID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []*TreatmentLogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *logRepoPG) LatestByRecord(ctx context.Context, recordID uuid.UUID) (*TreatmentLogEntry, error) {
	e, err := scanLogEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+logCols+` FROM treatment_log_entry WHERE record_id = $1
		 ORDER BY applied_at DESC, created_at DESC LIMIT 1`,
		recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
