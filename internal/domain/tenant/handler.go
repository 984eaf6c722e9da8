package tenant

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospnet/hospnet/internal/platform/auth"
	"github.com/hospnet/hospnet/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/hospitals", h.Create)
	admin.GET("/hospitals", h.List)

	api.GET("/hospitals/resolve", h.Resolve)
	api.GET("/hospitals/:id", h.Get)
}

type createHospitalRequest struct {
	Name       string `json:"name"`
	Subdomain  string `json:"subdomain"`
	AdminEmail string `json:"admin_email"`
	Plan       Plan   `json:"plan"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createHospitalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.AdminEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and admin_email are required")
	}

	hosp := &Hospital{
		Name:       req.Name,
		Subdomain:  req.Subdomain,
		AdminEmail: req.AdminEmail,
		Plan:       req.Plan,
	}
	created, err := h.svc.CreateHospital(c.Request().Context(), hosp)
	if errors.Is(err, ErrSubdomainTaken) {
		return echo.NewHTTPError(http.StatusConflict, "subdomain already taken")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Resolve(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key query parameter is required")
	}
	hosp, err := h.svc.ResolveTenant(c.Request().Context(), key)
	if errors.Is(err, ErrHospitalNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	hosp, err := h.svc.GetHospital(c.Request().Context(), id)
	if errors.Is(err, ErrHospitalNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListHospitals(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
