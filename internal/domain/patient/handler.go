package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/camelloncase/healthgo/internal/platform/auth"
	"github.com/camelloncase/healthgo/pkg/pagination"
)

// Handler exposes patient registration, vitals ingestion, and read endpoints.
type Handler struct {
	service *Service
	logger  zerolog.Logger
}

func NewHandler(service *Service, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts patient routes on g. Writes are doctor-only; reads
// are open to both roles.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	doctor := auth.RequireRole(auth.RoleDoctor)
	viewer := auth.RequireRole(auth.RoleDoctor, auth.RoleVisitor)

	g.POST("/patients", h.Create, doctor)
	g.POST("/patients/ingest", h.Ingest, doctor)
	g.GET("/patients", h.List, viewer)
	g.GET("/patients/:code", h.Get, viewer)
	g.GET("/patients/:code/export", h.Export, doctor)
}

func (h *Handler) Create(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := h.service.Register(c.Request().Context(), in)
	if err != nil {
		return h.mapError(c, err)
	}

	view, err := h.service.Get(c.Request().Context(), p.Code, true)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) Ingest(c echo.Context) error {
	var obs Observation
	if err := c.Bind(&obs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := h.service.Ingest(c.Request().Context(), obs)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, NewEvent(p))
}

func (h *Handler) List(c echo.Context) error {
	params := pagination.FromContext(c)
	elevated := auth.Elevated(c.Request().Context())

	views, total, err := h.service.List(c.Request().Context(), params.Limit, params.Offset, elevated)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, params))
}

func (h *Handler) Get(c echo.Context) error {
	elevated := auth.Elevated(c.Request().Context())
	view, err := h.service.Get(c.Request().Context(), c.Param("code"), elevated)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Export(c echo.Context) error {
	rec, err := h.service.Export(c.Request().Context(), c.Param("code"))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("patient request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
