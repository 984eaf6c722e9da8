package plugin

import (
	"context"
	"errors"
	"fmt"
)

// Ledger drives the per-tenant activation state machine:
//
//	(no row) -> SetupInProgress -> Active -> Deactivated -> SetupInProgress -> ...
//
// Every transition is a compare-and-set on the current state, so two
// concurrent calls for the same (tenant, plugin) pair cannot both succeed.
type Ledger struct {
	plugins     PluginRepository
	activations ActivationRepository
}

func NewLedger(plugins PluginRepository, activations ActivationRepository) *Ledger {
	return &Ledger{plugins: plugins, activations: activations}
}

// BeginActivation starts setup for the latest registered version of the
// plugin. Re-activating a deactivated plugin reuses its stored
// configuration; a plugin already in Active fails with ErrAlreadyActive.
func (l *Ledger) BeginActivation(ctx context.Context, tenantID, pluginName, actingUser string) (*TenantActivation, error) {
	p, err := l.plugins.GetLatest(ctx, pluginName)
	if err != nil {
		return nil, err
	}

	fresh := &TenantActivation{
		TenantID:      tenantID,
		PluginName:    p.Name,
		PluginVersion: p.Version,
		State:         StateSetupInProgress,
		Config:        map[string]interface{}{},
		ActivatedBy:   actingUser,
	}
	inserted, err := l.activations.Insert(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if inserted {
		return l.activations.Get(ctx, tenantID, pluginName)
	}

	// A row already exists: re-activation path or conflict.
	moved, err := l.activations.Transition(ctx, tenantID, pluginName, StateDeactivated, StateSetupInProgress, actingUser)
	if err != nil {
		return nil, err
	}
	if moved {
		return l.activations.Get(ctx, tenantID, pluginName)
	}

	current, err := l.activations.Get(ctx, tenantID, pluginName)
	if err != nil {
		return nil, err
	}
	switch current.State {
	case StateActive:
		return nil, ErrAlreadyActive
	case StateSetupInProgress:
		// Setup already underway; hand back the existing row so the setup
		// routine can resume collecting configuration.
		return current, nil
	default:
		return nil, fmt.Errorf("activation %s/%s in unexpected state %q", tenantID, pluginName, current.State)
	}
}

// CompleteActivation transitions SetupInProgress -> Active and persists the
// tenant configuration. A nil config keeps the stored one (re-activation
// without reset). Out-of-order calls fail with ErrNotInSetup.
func (l *Ledger) CompleteActivation(ctx context.Context, tenantID, pluginName string, config map[string]interface{}) (*TenantActivation, error) {
	return l.activations.CompleteSetup(ctx, tenantID, pluginName, config)
}

// Deactivate transitions Active -> Deactivated. Configuration is preserved
// for later re-activation.
func (l *Ledger) Deactivate(ctx context.Context, tenantID, pluginName string) (*TenantActivation, error) {
	moved, err := l.activations.Transition(ctx, tenantID, pluginName, StateActive, StateDeactivated, "")
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrNotActive
	}
	return l.activations.Get(ctx, tenantID, pluginName)
}

// IsUsable is the single predicate the access gate consults: true only when
// the pair is in Active.
func (l *Ledger) IsUsable(ctx context.Context, tenantID, pluginName string) (bool, error) {
	a, err := l.activations.Get(ctx, tenantID, pluginName)
	if errors.Is(err, ErrActivationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return a.State == StateActive, nil
}

// Unpublish removes a plugin version from the registry. Refused with
// ErrPluginInUse while any tenant on the network holds an activation row for
// the plugin, in any state: deactivated tenants keep their stored
// configuration, so the metadata behind it must stay resolvable.
func (l *Ledger) Unpublish(ctx context.Context, name, version string) error {
	n, err := l.activations.CountForPlugin(ctx, name)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s has %d activation(s)", ErrPluginInUse, name, n)
	}
	return l.plugins.Delete(ctx, name, version)
}

// Get returns the activation row for a pair.
func (l *Ledger) Get(ctx context.Context, tenantID, pluginName string) (*TenantActivation, error) {
	return l.activations.Get(ctx, tenantID, pluginName)
}

// ListForTenant returns all activation rows for a tenant's admin view.
func (l *Ledger) ListForTenant(ctx context.Context, tenantID string, limit, offset int) ([]*TenantActivation, int, error) {
	return l.activations.ListForTenant(ctx, tenantID, limit, offset)
}
