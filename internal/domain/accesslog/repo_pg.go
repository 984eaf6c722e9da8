package accesslog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospnet/hospnet/internal/platform/db"
)

// ErrEntryNotFound indicates an unknown access-log entry id.
var ErrEntryNotFound = errors.New("access log entry not found")

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, code, patient_id, tenant_id, user_id, plugin_name, action, outcome, context, recorded`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.Code, &e.PatientID, &e.TenantID, &e.UserID,
		&e.PluginName, &e.Action, &e.Outcome, &e.Context, &e.Recorded,
	)
	return &e, err
}

func (r *RepoPG) Append(ctx context.Context, e *Entry) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO shared.access_log
		 (code, patient_id, tenant_id, user_id, plugin_name, action, outcome, context)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, recorded`,
		e.Code, e.PatientID, e.TenantID, e.UserID, e.PluginName, e.Action, e.Outcome, e.Context,
	).Scan(&e.ID, &e.Recorded)
	if err != nil {
		return fmt.Errorf("append access log entry: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM shared.access_log WHERE id = $1", entryCols)
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get access log entry: %w", err)
	}
	return e, nil
}

func (r *RepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	for param, column := range map[string]string{
		"identifier": "code",
		"tenant":     "tenant_id",
		"plugin":     "plugin_name",
		"user":       "user_id",
		"outcome":    "outcome",
		"action":     "action",
	} {
		if v, ok := params[param]; ok {
			where = append(where, fmt.Sprintf("%s = $%d", column, idx))
			args = append(args, v)
			idx++
		}
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM shared.access_log %s", whereClause)
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM shared.access_log %s ORDER BY recorded DESC LIMIT $%d OFFSET $%d",
		entryCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) CountForTenant(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM shared.access_log WHERE tenant_id = $1", tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count access log entries: %w", err)
	}
	return n, nil
}
