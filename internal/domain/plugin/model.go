package plugin

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivationState is the per-tenant lifecycle state of a plugin. A plugin
// with no activation row is merely discovered. Transitions are serialized
// per (tenant, plugin) by compare-and-set on the current state.
type ActivationState string

const (
	StateSetupInProgress ActivationState = "setup_in_progress"
	StateActive          ActivationState = "active"
	StateDeactivated     ActivationState = "deactivated"
)

var (
	// ErrDuplicateVersion indicates registering a (name, version) pair that
	// already exists; publish a new version instead.
	ErrDuplicateVersion = errors.New("plugin version already registered")
	// ErrInvalidManifest indicates a manifest missing mandated fields.
	ErrInvalidManifest = errors.New("invalid plugin manifest")
	// ErrPluginNotFound indicates an unknown (name, version).
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrPluginInUse indicates unpublishing a plugin while some tenant on
	// the network still holds an activation row for it.
	ErrPluginInUse = errors.New("plugin has tenant activations")
	// ErrAlreadyActive indicates beginning activation while already active.
	ErrAlreadyActive = errors.New("plugin already active for tenant")
	// ErrNotInSetup indicates completing an activation that was never begun,
	// or that another completion already won.
	ErrNotInSetup = errors.New("activation not in setup")
	// ErrNotActive indicates deactivating a plugin that is not active.
	ErrNotActive = errors.New("plugin not active for tenant")
	// ErrActivationNotFound indicates no activation row for (tenant, plugin).
	ErrActivationNotFound = errors.New("activation not found")
)

// Plugin is the global metadata for an installable capability module. The
// four analytics views and the setup routine are mandated for every plugin.
type Plugin struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Version      string    `db:"version" json:"version"`
	Category     string    `db:"category" json:"category"`
	Permissions  []string  `db:"permissions" json:"permissions"`
	PatientView  string    `db:"patient_view" json:"patient_view"`
	StaffView    string    `db:"staff_view" json:"staff_view"`
	TenantView   string    `db:"tenant_view" json:"tenant_view"`
	NetworkView  string    `db:"network_view" json:"network_view"`
	SetupRoutine string    `db:"setup_routine" json:"setup_routine"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Manifest is the registration payload for a plugin version.
type Manifest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Category     string   `json:"category"`
	Permissions  []string `json:"permissions"`
	PatientView  string   `json:"patient_view"`
	StaffView    string   `json:"staff_view"`
	TenantView   string   `json:"tenant_view"`
	NetworkView  string   `json:"network_view"`
	SetupRoutine string   `json:"setup_routine"`
}

// Validate checks the mandated manifest fields.
func (m *Manifest) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s is required", ErrInvalidManifest, field)
	}
	switch {
	case m.Name == "":
		return missing("name")
	case m.Version == "":
		return missing("version")
	case m.PatientView == "":
		return missing("patient_view")
	case m.StaffView == "":
		return missing("staff_view")
	case m.TenantView == "":
		return missing("tenant_view")
	case m.NetworkView == "":
		return missing("network_view")
	case m.SetupRoutine == "":
		return missing("setup_routine")
	}
	return nil
}

// TenantActivation is the per-(tenant, plugin) activation record. At most
// one row exists per pair; configuration survives deactivation so
// re-activation can reuse it.
type TenantActivation struct {
	ID            uuid.UUID              `db:"id" json:"id"`
	TenantID      string                 `db:"tenant_id" json:"tenant_id"`
	PluginName    string                 `db:"plugin_name" json:"plugin_name"`
	PluginVersion string                 `db:"plugin_version" json:"plugin_version"`
	State         ActivationState        `db:"state" json:"state"`
	Config        map[string]interface{} `db:"config" json:"config"`
	ActivatedBy   string                 `db:"activated_by" json:"activated_by"`
	ActivatedAt   *time.Time             `db:"activated_at" json:"activated_at,omitempty"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time              `db:"updated_at" json:"updated_at"`
}
