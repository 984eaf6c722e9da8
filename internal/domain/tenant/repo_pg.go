package tenant

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

type HospitalRepoPG struct {
	pool *pgxpool.Pool
}

func NewHospitalRepoPG(pool *pgxpool.Pool) *HospitalRepoPG {
	return &HospitalRepoPG{pool: pool}
}

func (r *HospitalRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const hospitalCols = `id, name, subdomain, admin_email, plan, active, created_at, updated_at`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Subdomain, &h.AdminEmail, &h.Plan, &h.Active, &h.CreatedAt, &h.UpdatedAt)
	return &h, err
}

func (r *HospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO shared.hospital (name, subdomain, admin_email, plan, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		h.Name, h.Subdomain, h.AdminEmail, h.Plan, h.Active,
	).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrSubdomainTaken
	}
	if err != nil {
		return fmt.Errorf("create hospital %s: %w", h.Subdomain, err)
	}
	return nil
}

func (r *HospitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	q := fmt.Sprintf("SELECT %s FROM shared.hospital WHERE id = $1", hospitalCols)
	h, err := scanHospital(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHospitalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hospital: %w", err)
	}
	return h, nil
}

func (r *HospitalRepoPG) GetBySubdomain(ctx context.Context, subdomain string) (*Hospital, error) {
	q := fmt.Sprintf("SELECT %s FROM shared.hospital WHERE subdomain = $1", hospitalCols)
	h, err := scanHospital(r.conn(ctx).QueryRow(ctx, q, subdomain))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHospitalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hospital by subdomain %s: %w", subdomain, err)
	}
	return h, nil
}

func (r *HospitalRepoPG) List(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM shared.hospital").Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM shared.hospital ORDER BY name LIMIT $1 OFFSET $2", hospitalCols)
	rows, err := r.conn(ctx).Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, h)
	}
	return items, total, rows.Err()
}
