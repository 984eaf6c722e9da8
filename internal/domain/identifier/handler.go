package identifier

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospnet/hospnet/internal/platform/auth"
	"github.com/hospnet/hospnet/internal/platform/db"
)

type Handler struct {
	svc *Allocator
}

func NewHandler(svc *Allocator) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	write := api.Group("", auth.RequireRole("registrar"))
	write.POST("/identifiers", h.Allocate)
	write.POST("/identifiers/assign", h.Assign)
	write.POST("/identifiers/:code/retire", h.Retire)

	api.GET("/identifiers/availability", h.CheckAvailability)
	api.GET("/identifiers/:code", h.Resolve)
}

type allocateRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
}

type assignRequest struct {
	Code      string    `json:"code"`
	PatientID uuid.UUID `json:"patient_id"`
}

func (h *Handler) Allocate(c echo.Context) error {
	var req allocateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}

	ctx := c.Request().Context()
	own, err := h.svc.Allocate(ctx, req.PatientID, db.TenantFromContext(ctx))
	if err != nil {
		if errors.Is(err, ErrAllocationExhausted) {
			// Registration must fail loudly: no patient record may exist
			// without an identifier.
			return echo.NewHTTPError(http.StatusServiceUnavailable, "identifier allocation exhausted")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, own)
}

func (h *Handler) Assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}

	ctx := c.Request().Context()
	own, err := h.svc.Assign(ctx, req.Code, req.PatientID, db.TenantFromContext(ctx))
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid identifier format")
	case errors.Is(err, ErrAlreadyOwned):
		return echo.NewHTTPError(http.StatusConflict, "identifier already owned")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, own)
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	avail, err := h.svc.CheckAvailability(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, avail)
}

func (h *Handler) Resolve(c echo.Context) error {
	own, err := h.svc.Resolve(c.Request().Context(), c.Param("code"))
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid identifier format")
	case errors.Is(err, ErrUnknownIdentifier):
		return echo.NewHTTPError(http.StatusNotFound, "identifier not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, own)
}

func (h *Handler) Retire(c echo.Context) error {
	err := h.svc.Retire(c.Request().Context(), c.Param("code"))
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid identifier format")
	case errors.Is(err, ErrUnknownIdentifier):
		return echo.NewHTTPError(http.StatusNotFound, "identifier not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
