package identifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospnet/hospnet/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// StorePG is the Postgres-backed uniqueness store. The primary key on
// medical_identifier.code makes the insert the atomic claim: racing writers
// resolve in the database and exactly one wins.
type StorePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) *StorePG {
	return &StorePG{pool: pool}
}

func (r *StorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *StorePG) TryClaim(ctx context.Context, code string, patientID uuid.UUID, tenantID string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO shared.medical_identifier (code, patient_id, tenant_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO NOTHING`,
		code, patientID, tenantID)
	if err != nil {
		return false, fmt.Errorf("claim identifier %s: %w", code, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *StorePG) Resolve(ctx context.Context, code string) (*Ownership, error) {
	var o Ownership
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT code, patient_id, tenant_id, retired, claimed_at
		 FROM shared.medical_identifier WHERE code = $1`,
		code).Scan(&o.Code, &o.PatientID, &o.TenantID, &o.Retired, &o.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownIdentifier
	}
	if err != nil {
		return nil, fmt.Errorf("resolve identifier %s: %w", code, err)
	}
	return &o, nil
}

func (r *StorePG) Retire(ctx context.Context, code string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE shared.medical_identifier SET retired = TRUE WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("retire identifier %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownIdentifier
	}
	return nil
}

func (r *StorePG) CountClaimed(ctx context.Context) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM shared.medical_identifier`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count claimed identifiers: %w", err)
	}
	return n, nil
}
