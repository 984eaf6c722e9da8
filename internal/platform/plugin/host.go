package plugin

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/hospnet/hospnet/internal/domain/gate"
	pluginreg "github.com/hospnet/hospnet/internal/domain/plugin"
)

// Module is a compiled-in plugin. Modules never touch patient records
// directly: every access goes through the gate handed to RegisterRoutes.
type Module interface {
	Name() string
	// Manifest describes the module for the shared plugin catalog.
	Manifest() pluginreg.Manifest
	RegisterRoutes(api *echo.Group, g *gate.Gate)
	Migrate(ctx context.Context, pool *pgxpool.Pool) error
}

// Host holds the compiled-in modules and wires them to the server.
type Host struct {
	modules []Module
}

func NewHost() *Host {
	return &Host{}
}

func (h *Host) Register(m Module) {
	h.modules = append(h.modules, m)
}

func (h *Host) RegisterRoutes(api *echo.Group, g *gate.Gate) {
	for _, m := range h.modules {
		m.RegisterRoutes(api, g)
	}
}

func (h *Host) Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range h.modules {
		if err := m.Migrate(ctx, pool); err != nil {
			return err
		}
	}
	return nil
}

// Sync publishes each module's manifest to the catalog. A version that is
// already registered is left as-is: published versions are immutable.
func (h *Host) Sync(ctx context.Context, registry *pluginreg.Registry) error {
	for _, m := range h.modules {
		manifest := m.Manifest()
		if _, err := registry.Register(ctx, &manifest); err != nil {
			if errors.Is(err, pluginreg.ErrDuplicateVersion) {
				continue
			}
			return err
		}
	}
	return nil
}

func (h *Host) Modules() []Module {
	return h.modules
}
