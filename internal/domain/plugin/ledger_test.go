package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockActivationRepo struct {
	mu   sync.Mutex
	rows map[string]*TenantActivation
}

func newMockActivationRepo() *mockActivationRepo {
	return &mockActivationRepo{rows: map[string]*TenantActivation{}}
}

func key(tenantID, pluginName string) string { return tenantID + "/" + pluginName }

func (r *mockActivationRepo) Get(ctx context.Context, tenantID, pluginName string) (*TenantActivation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[key(tenantID, pluginName)]
	if !ok {
		return nil, ErrActivationNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *mockActivationRepo) ListForTenant(ctx context.Context, tenantID string, limit, offset int) ([]*TenantActivation, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*TenantActivation
	for _, a := range r.rows {
		if a.TenantID == tenantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *mockActivationRepo) Insert(ctx context.Context, a *TenantActivation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(a.TenantID, a.PluginName)
	if _, exists := r.rows[k]; exists {
		return false, nil
	}
	cp := *a
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	r.rows[k] = &cp
	return true, nil
}

func (r *mockActivationRepo) Transition(ctx context.Context, tenantID, pluginName string, from, to ActivationState, actingUser string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[key(tenantID, pluginName)]
	if !ok || a.State != from {
		return false, nil
	}
	a.State = to
	if actingUser != "" {
		a.ActivatedBy = actingUser
	}
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *mockActivationRepo) CompleteSetup(ctx context.Context, tenantID, pluginName string, config map[string]interface{}) (*TenantActivation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[key(tenantID, pluginName)]
	if !ok || a.State != StateSetupInProgress {
		return nil, ErrNotInSetup
	}
	a.State = StateActive
	if config != nil {
		a.Config = config
	}
	now := time.Now().UTC()
	a.ActivatedAt = &now
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (r *mockActivationRepo) CountForPlugin(ctx context.Context, pluginName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.rows {
		if a.PluginName == pluginName {
			n++
		}
	}
	return n, nil
}

func newTestLedger(t *testing.T) (*Ledger, *mockActivationRepo) {
	t.Helper()
	plugins := newMockPluginRepo()
	ctx := context.Background()
	reg := NewRegistry(plugins)
	if _, err := reg.Register(ctx, validManifest("vitals", "1.0.0")); err != nil {
		t.Fatalf("seed register failed: %v", err)
	}
	if _, err := reg.Register(ctx, validManifest("vitals", "1.2.0")); err != nil {
		t.Fatalf("seed register failed: %v", err)
	}
	activations := newMockActivationRepo()
	return NewLedger(plugins, activations), activations
}

func TestLedger_BeginActivation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	a, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin@stmarys.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.State != StateSetupInProgress {
		t.Errorf("expected setup_in_progress, got %s", a.State)
	}
	if a.PluginVersion != "1.2.0" {
		t.Errorf("expected latest version 1.2.0, got %s", a.PluginVersion)
	}
	if a.ActivatedBy != "admin@stmarys.example" {
		t.Errorf("acting user not recorded: %s", a.ActivatedBy)
	}
}

func TestLedger_BeginActivation_UnknownPlugin(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.BeginActivation(context.Background(), "st_marys", "nonexistent", "admin")
	if !errors.Is(err, ErrPluginNotFound) {
		t.Fatalf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestLedger_BeginActivation_AlreadyActive(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", map[string]interface{}{"ward": "icu"}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	_, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin")
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestLedger_BeginActivation_SetupResumes(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	second, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin")
	if err != nil {
		t.Fatalf("second begin failed: %v", err)
	}
	if second.ID != first.ID {
		t.Error("expected the same activation row, not a new one")
	}
	if second.State != StateSetupInProgress {
		t.Errorf("expected setup_in_progress, got %s", second.State)
	}
}

func TestLedger_CompleteActivation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	cfg := map[string]interface{}{"ward": "icu", "threshold": 42}
	a, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.State != StateActive {
		t.Errorf("expected active, got %s", a.State)
	}
	if a.Config["ward"] != "icu" {
		t.Errorf("config not stored: %v", a.Config)
	}
	if a.ActivatedAt == nil {
		t.Error("expected ActivatedAt set")
	}
}

func TestLedger_CompleteActivation_OutOfOrder(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.CompleteActivation(context.Background(), "st_marys", "vitals", nil)
	if !errors.Is(err, ErrNotInSetup) {
		t.Fatalf("expected ErrNotInSetup, got %v", err)
	}
}

func TestLedger_CompleteActivation_Twice(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", nil); err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	_, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", nil)
	if !errors.Is(err, ErrNotInSetup) {
		t.Fatalf("expected ErrNotInSetup on second complete, got %v", err)
	}
}

func TestLedger_CompleteActivation_ConcurrentSingleWinner(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ledger.CompleteActivation(ctx, "st_marys", "vitals", nil)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrNotInSetup):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
}

func TestLedger_Deactivate(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	a, err := ledger.Deactivate(ctx, "st_marys", "vitals")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.State != StateDeactivated {
		t.Errorf("expected deactivated, got %s", a.State)
	}

	// Deactivating again is out of order.
	if _, err := ledger.Deactivate(ctx, "st_marys", "vitals"); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
}

func TestLedger_Deactivate_NeverActivated(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.Deactivate(context.Background(), "st_marys", "vitals")
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestLedger_Reactivation_ReusesConfig(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	cfg := map[string]interface{}{"ward": "icu"}
	if _, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", cfg); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if _, err := ledger.Deactivate(ctx, "st_marys", "vitals"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	// Re-activation goes back through setup on the same row.
	a, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin2")
	if err != nil {
		t.Fatalf("re-begin failed: %v", err)
	}
	if a.State != StateSetupInProgress {
		t.Errorf("expected setup_in_progress, got %s", a.State)
	}
	if a.Config["ward"] != "icu" {
		t.Errorf("stored config lost on re-activation: %v", a.Config)
	}

	// Completing with nil config keeps the stored configuration.
	a, err = ledger.CompleteActivation(ctx, "st_marys", "vitals", nil)
	if err != nil {
		t.Fatalf("re-complete failed: %v", err)
	}
	if a.State != StateActive {
		t.Errorf("expected active, got %s", a.State)
	}
	if a.Config["ward"] != "icu" {
		t.Errorf("expected config reused, got %v", a.Config)
	}
}

func TestLedger_IsUsable(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	usable, err := ledger.IsUsable(ctx, "st_marys", "vitals")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usable {
		t.Error("expected not usable with no activation row")
	}

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	usable, _ = ledger.IsUsable(ctx, "st_marys", "vitals")
	if usable {
		t.Error("expected not usable while in setup")
	}

	if _, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	usable, _ = ledger.IsUsable(ctx, "st_marys", "vitals")
	if !usable {
		t.Error("expected usable once active")
	}

	if _, err := ledger.Deactivate(ctx, "st_marys", "vitals"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	usable, _ = ledger.IsUsable(ctx, "st_marys", "vitals")
	if usable {
		t.Error("expected not usable after deactivation")
	}
}

func TestLedger_IsolatedPerTenant(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	usable, err := ledger.IsUsable(ctx, "county_general", "vitals")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usable {
		t.Error("activation must not leak across tenants")
	}
}

func TestLedger_Unpublish(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if err := ledger.Unpublish(ctx, "vitals", "1.0.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ledger.plugins.Get(ctx, "vitals", "1.0.0"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("expected version removed, got %v", err)
	}
	// The other version is untouched.
	if _, err := ledger.plugins.Get(ctx, "vitals", "1.2.0"); err != nil {
		t.Errorf("unrelated version removed: %v", err)
	}
}

func TestLedger_Unpublish_RefusedWhileActivated(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	err := ledger.Unpublish(ctx, "vitals", "1.2.0")
	if !errors.Is(err, ErrPluginInUse) {
		t.Fatalf("expected ErrPluginInUse, got %v", err)
	}
	if _, err := ledger.plugins.Get(ctx, "vitals", "1.2.0"); err != nil {
		t.Errorf("refused unpublish must not remove the plugin: %v", err)
	}
}

func TestLedger_Unpublish_RefusedWhileDeactivated(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.BeginActivation(ctx, "st_marys", "vitals", "admin"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := ledger.CompleteActivation(ctx, "st_marys", "vitals", nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if _, err := ledger.Deactivate(ctx, "st_marys", "vitals"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	// Deactivated tenants keep their stored config, so the row still pins
	// the plugin metadata.
	if err := ledger.Unpublish(ctx, "vitals", "1.2.0"); !errors.Is(err, ErrPluginInUse) {
		t.Fatalf("expected ErrPluginInUse, got %v", err)
	}
}

func TestLedger_Unpublish_UnknownVersion(t *testing.T) {
	ledger, _ := newTestLedger(t)

	err := ledger.Unpublish(context.Background(), "vitals", "9.9.9")
	if !errors.Is(err, ErrPluginNotFound) {
		t.Fatalf("expected ErrPluginNotFound, got %v", err)
	}
}
