package inventory

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

type usageRepoPG struct{ pool *pgxpool.Pool }

func NewUsageRepoPG(pool *pgxpool.Pool) UsageRepository {
	return &usageRepoPG{pool: pool}
}

func (r *usageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const usageCols = `id, patient_id, product_id, product_name, quantity, used_at,
	reaction_occurred, reaction_description, recorded_by, created_at, updated_at`

func (r *usageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Usage, error) {
	var u Usage
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+usageCols+` FROM inventory_usage WHERE id = $1`, id).
		Scan(&u.ID, &u.PatientID, &u.ProductID, &u.ProductName, &u.Quantity, &u.UsedAt,
			&u.ReactionOccurred, &u.ReactionDescription, &u.RecordedBy, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *usageRepoPG) UpdateReaction(ctx context.Context, id uuid.UUID, occurred bool, description *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_usage SET reaction_occurred=$2, reaction_description=$3, updated_at=NOW()
		WHERE id = $1`,
		id, occurred, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
