package plugin

import (
	"context"
	"errors"
	"fmt"

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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// -- PluginRepoPG --

type PluginRepoPG struct {
	pool *pgxpool.Pool
}

func NewPluginRepoPG(pool *pgxpool.Pool) *PluginRepoPG {
	return &PluginRepoPG{pool: pool}
}

func (r *PluginRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const pluginCols = `id, name, version, category, permissions,
	patient_view, staff_view, tenant_view, network_view, setup_routine, created_at`

func scanPlugin(row pgx.Row) (*Plugin, error) {
	var p Plugin
	err := row.Scan(
		&p.ID, &p.Name, &p.Version, &p.Category, &p.Permissions,
		&p.PatientView, &p.StaffView, &p.TenantView, &p.NetworkView, &p.SetupRoutine, &p.CreatedAt,
	)
	return &p, err
}

func (r *PluginRepoPG) Create(ctx context.Context, p *Plugin) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO shared.plugin
		 (name, version, category, permissions, patient_view, staff_view, tenant_view, network_view, setup_routine)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		p.Name, p.Version, p.Category, p.Permissions,
		p.PatientView, p.StaffView, p.TenantView, p.NetworkView, p.SetupRoutine,
	).Scan(&p.ID, &p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateVersion
	}
	if err != nil {
		return fmt.Errorf("create plugin %s@%s: %w", p.Name, p.Version, err)
	}
	return nil
}

func (r *PluginRepoPG) Get(ctx context.Context, name, version string) (*Plugin, error) {
	q := fmt.Sprintf("SELECT %s FROM shared.plugin WHERE name = $1 AND version = $2", pluginCols)
	p, err := scanPlugin(r.conn(ctx).QueryRow(ctx, q, name, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPluginNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plugin %s@%s: %w", name, version, err)
	}
	return p, nil
}

func (r *PluginRepoPG) GetLatest(ctx context.Context, name string) (*Plugin, error) {
	q := fmt.Sprintf("SELECT %s FROM shared.plugin WHERE name = $1 ORDER BY created_at DESC LIMIT 1", pluginCols)
	p, err := scanPlugin(r.conn(ctx).QueryRow(ctx, q, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPluginNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest plugin %s: %w", name, err)
	}
	return p, nil
}

func (r *PluginRepoPG) List(ctx context.Context, limit, offset int) ([]*Plugin, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM shared.plugin").Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM shared.plugin ORDER BY name, created_at DESC LIMIT $1 OFFSET $2", pluginCols)
	rows, err := r.conn(ctx).Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *PluginRepoPG) ListForDiscovery(ctx context.Context, tenantID string, limit, offset int) ([]*Plugin, int, error) {
	where := `WHERE NOT EXISTS (
		SELECT 1 FROM shared.tenant_activation ta
		WHERE ta.tenant_id = $1 AND ta.plugin_name = p.name AND ta.state = 'active')`

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM shared.plugin p %s", where), tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT p.id, p.name, p.version, p.category, p.permissions,
		p.patient_view, p.staff_view, p.tenant_view, p.network_view, p.setup_routine, p.created_at
		FROM shared.plugin p %s ORDER BY p.name, p.created_at DESC LIMIT $2 OFFSET $3`, where)
	rows, err := r.conn(ctx).Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *PluginRepoPG) Delete(ctx context.Context, name, version string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		"DELETE FROM shared.plugin WHERE name = $1 AND version = $2", name, version)
	if err != nil {
		return fmt.Errorf("delete plugin %s@%s: %w", name, version, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPluginNotFound
	}
	return nil
}

// -- ActivationRepoPG --

type ActivationRepoPG struct {
	pool *pgxpool.Pool
}

func NewActivationRepoPG(pool *pgxpool.Pool) *ActivationRepoPG {
	return &ActivationRepoPG{pool: pool}
}

func (r *ActivationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const activationCols = `id, tenant_id, plugin_name, plugin_version, state, config,
	activated_by, activated_at, created_at, updated_at`

func scanActivation(row pgx.Row) (*TenantActivation, error) {
	var a TenantActivation
	err := row.Scan(
		&a.ID, &a.TenantID, &a.PluginName, &a.PluginVersion, &a.State, &a.Config,
		&a.ActivatedBy, &a.ActivatedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	return &a, err
}

func (r *ActivationRepoPG) Get(ctx context.Context, tenantID, pluginName string) (*TenantActivation, error) {
	q := fmt.Sprintf("SELECT %s FROM shared.tenant_activation WHERE tenant_id = $1 AND plugin_name = $2", activationCols)
	a, err := scanActivation(r.conn(ctx).QueryRow(ctx, q, tenantID, pluginName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrActivationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get activation %s/%s: %w", tenantID, pluginName, err)
	}
	return a, nil
}

func (r *ActivationRepoPG) ListForTenant(ctx context.Context, tenantID string, limit, offset int) ([]*TenantActivation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM shared.tenant_activation WHERE tenant_id = $1", tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM shared.tenant_activation WHERE tenant_id = $1 ORDER BY plugin_name LIMIT $2 OFFSET $3", activationCols)
	rows, err := r.conn(ctx).Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*TenantActivation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *ActivationRepoPG) Insert(ctx context.Context, a *TenantActivation) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO shared.tenant_activation
		 (tenant_id, plugin_name, plugin_version, state, config, activated_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, plugin_name) DO NOTHING`,
		a.TenantID, a.PluginName, a.PluginVersion, a.State, a.Config, a.ActivatedBy)
	if err != nil {
		return false, fmt.Errorf("insert activation %s/%s: %w", a.TenantID, a.PluginName, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ActivationRepoPG) Transition(ctx context.Context, tenantID, pluginName string, from, to ActivationState, actingUser string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE shared.tenant_activation
		 SET state = $4, activated_by = COALESCE(NULLIF($5, ''), activated_by), updated_at = NOW()
		 WHERE tenant_id = $1 AND plugin_name = $2 AND state = $3`,
		tenantID, pluginName, from, to, actingUser)
	if err != nil {
		return false, fmt.Errorf("transition activation %s/%s: %w", tenantID, pluginName, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ActivationRepoPG) CompleteSetup(ctx context.Context, tenantID, pluginName string, config map[string]interface{}) (*TenantActivation, error) {
	q := fmt.Sprintf(`UPDATE shared.tenant_activation
		 SET state = 'active', config = COALESCE($3, config), activated_at = NOW(), updated_at = NOW()
		 WHERE tenant_id = $1 AND plugin_name = $2 AND state = 'setup_in_progress'
		 RETURNING %s`, activationCols)
	a, err := scanActivation(r.conn(ctx).QueryRow(ctx, q, tenantID, pluginName, config))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either no row exists or another completion already won the race.
		return nil, ErrNotInSetup
	}
	if err != nil {
		return nil, fmt.Errorf("complete activation %s/%s: %w", tenantID, pluginName, err)
	}
	return a, nil
}

func (r *ActivationRepoPG) CountForPlugin(ctx context.Context, pluginName string) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM shared.tenant_activation WHERE plugin_name = $1", pluginName).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activations for %s: %w", pluginName, err)
	}
	return n, nil
}
