package accesslog

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospnet/hospnet/internal/platform/auth"
	"github.com/hospnet/hospnet/internal/platform/db"
	"github.com/hospnet/hospnet/pkg/pagination"
)

// Handler exposes the read-only compliance surface. There is no write
// endpoint: entries are appended exclusively by the access gate.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("compliance"))
	read.GET("/access-log", h.Search)
	read.GET("/access-log/stats", h.Stats)
	read.GET("/access-log/:id", h.Get)
}

var searchParams = []string{"identifier", "tenant", "plugin", "user", "outcome", "action"}

func (h *Handler) Search(c echo.Context) error {
	params := map[string]string{}
	for _, p := range searchParams {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchEntries(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// Stats reports the entry count for a tenant, for the compliance dashboard
// headline figure. Defaults to the requesting tenant.
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := c.QueryParam("tenant")
	if tenantID == "" {
		tenantID = db.TenantFromContext(ctx)
	}
	if tenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant is required")
	}

	total, err := h.svc.CountForTenant(ctx, tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"total":     total,
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.GetEntry(c.Request().Context(), id)
	if errors.Is(err, ErrEntryNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "access log entry not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}
