package plugin

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospnet/hospnet/internal/platform/auth"
	"github.com/hospnet/hospnet/internal/platform/db"
	"github.com/hospnet/hospnet/pkg/pagination"
)

type Handler struct {
	registry *Registry
	ledger   *Ledger
}

func NewHandler(registry *Registry, ledger *Ledger) *Handler {
	return &Handler{registry: registry, ledger: ledger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/plugins", h.Register)
	admin.DELETE("/plugins/:name/versions/:version", h.Unpublish)
	admin.POST("/activations/:plugin", h.BeginActivation)
	admin.POST("/activations/:plugin/complete", h.CompleteActivation)
	admin.POST("/activations/:plugin/deactivate", h.Deactivate)

	api.GET("/plugins", h.List)
	api.GET("/plugins/discovery", h.ListForDiscovery)
	api.GET("/plugins/:name/versions/:version", h.Get)
	api.GET("/activations", h.ListActivations)
	api.GET("/activations/:plugin", h.GetActivation)
}

func (h *Handler) Register(c echo.Context) error {
	var m Manifest
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := h.registry.Register(c.Request().Context(), &m)
	switch {
	case errors.Is(err, ErrInvalidManifest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateVersion):
		return echo.NewHTTPError(http.StatusConflict, "plugin version already registered")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Unpublish(c echo.Context) error {
	err := h.ledger.Unpublish(c.Request().Context(), c.Param("name"), c.Param("version"))
	switch {
	case errors.Is(err, ErrPluginInUse):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrPluginNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "plugin not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.registry.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListForDiscovery(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.registry.ListForDiscovery(ctx, db.TenantFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.registry.Get(c.Request().Context(), c.Param("name"), c.Param("version"))
	if errors.Is(err, ErrPluginNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "plugin not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) BeginActivation(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.ledger.BeginActivation(ctx, db.TenantFromContext(ctx), c.Param("plugin"), auth.UserIDFromContext(ctx))
	switch {
	case errors.Is(err, ErrPluginNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "plugin not found")
	case errors.Is(err, ErrAlreadyActive):
		return echo.NewHTTPError(http.StatusConflict, "plugin already active")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

type completeRequest struct {
	Config map[string]interface{} `json:"config"`
}

func (h *Handler) CompleteActivation(c echo.Context) error {
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	a, err := h.ledger.CompleteActivation(ctx, db.TenantFromContext(ctx), c.Param("plugin"), req.Config)
	switch {
	case errors.Is(err, ErrNotInSetup):
		return echo.NewHTTPError(http.StatusConflict, "activation not in setup")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Deactivate(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.ledger.Deactivate(ctx, db.TenantFromContext(ctx), c.Param("plugin"))
	switch {
	case errors.Is(err, ErrNotActive):
		return echo.NewHTTPError(http.StatusConflict, "plugin not active")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListActivations(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.ledger.ListForTenant(ctx, db.TenantFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetActivation(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.ledger.Get(ctx, db.TenantFromContext(ctx), c.Param("plugin"))
	if errors.Is(err, ErrActivationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "activation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}
