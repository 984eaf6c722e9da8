package plugin

import (
	"context"
)

// PluginRepository stores global plugin metadata.
type PluginRepository interface {
	// Create persists a new plugin version; ErrDuplicateVersion when the
	// (name, version) pair already exists.
	Create(ctx context.Context, p *Plugin) error
	Get(ctx context.Context, name, version string) (*Plugin, error)
	// GetLatest returns the most recently registered version of a plugin.
	GetLatest(ctx context.Context, name string) (*Plugin, error)
	List(ctx context.Context, limit, offset int) ([]*Plugin, int, error)
	// ListForDiscovery returns plugins without an Active activation for the
	// tenant, for the admin "apps" view.
	ListForDiscovery(ctx context.Context, tenantID string, limit, offset int) ([]*Plugin, int, error)
	// Delete removes a plugin version; ErrPluginNotFound when the (name,
	// version) pair does not exist. Callers guard against live activations.
	Delete(ctx context.Context, name, version string) error
}

// ActivationRepository stores per-tenant activation rows. All state changes
// are compare-and-set on the current state so that concurrent transitions
// for the same (tenant, plugin) pair resolve with exactly one winner.
type ActivationRepository interface {
	Get(ctx context.Context, tenantID, pluginName string) (*TenantActivation, error)
	ListForTenant(ctx context.Context, tenantID string, limit, offset int) ([]*TenantActivation, int, error)

	// Insert creates the first activation row for a pair in
	// StateSetupInProgress. Returns false when a row already exists.
	Insert(ctx context.Context, a *TenantActivation) (bool, error)

	// Transition moves a pair from one state to another; false when the row
	// is not currently in the from state.
	Transition(ctx context.Context, tenantID, pluginName string, from, to ActivationState, actingUser string) (bool, error)

	// CompleteSetup atomically transitions SetupInProgress -> Active and
	// persists the tenant configuration. Returns the updated row, or
	// ErrNotInSetup when the pair is not in setup.
	CompleteSetup(ctx context.Context, tenantID, pluginName string, config map[string]interface{}) (*TenantActivation, error)

	// CountForPlugin reports activation rows across all tenants for a
	// plugin name, regardless of state.
	CountForPlugin(ctx context.Context, pluginName string) (int64, error)
}
