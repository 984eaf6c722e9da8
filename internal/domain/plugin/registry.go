package plugin

import (
	"context"
)

// Registry serves global plugin metadata. Plugins are published by
// administrative registration; a new version is a new row, existing versions
// are never mutated.
type Registry struct {
	plugins PluginRepository
}

func NewRegistry(plugins PluginRepository) *Registry {
	return &Registry{plugins: plugins}
}

// Register validates a manifest and persists it as a new plugin version.
func (r *Registry) Register(ctx context.Context, m *Manifest) (*Plugin, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	p := &Plugin{
		Name:         m.Name,
		Version:      m.Version,
		Category:     m.Category,
		Permissions:  m.Permissions,
		PatientView:  m.PatientView,
		StaffView:    m.StaffView,
		TenantView:   m.TenantView,
		NetworkView:  m.NetworkView,
		SetupRoutine: m.SetupRoutine,
	}
	if p.Permissions == nil {
		p.Permissions = []string{}
	}
	if err := r.plugins.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Registry) Get(ctx context.Context, name, version string) (*Plugin, error) {
	return r.plugins.Get(ctx, name, version)
}

func (r *Registry) GetLatest(ctx context.Context, name string) (*Plugin, error) {
	return r.plugins.GetLatest(ctx, name)
}

func (r *Registry) List(ctx context.Context, limit, offset int) ([]*Plugin, int, error) {
	return r.plugins.List(ctx, limit, offset)
}

// ListForDiscovery returns plugins the tenant has not activated, for the
// admin "apps" view.
func (r *Registry) ListForDiscovery(ctx context.Context, tenantID string, limit, offset int) ([]*Plugin, int, error) {
	return r.plugins.ListForDiscovery(ctx, tenantID, limit, offset)
}
