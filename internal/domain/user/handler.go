package user

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/camelloncase/healthgo/internal/platform/auth"
)

// Handler exposes account signup, login, and password reset endpoints.
type Handler struct {
	service *Service
	logger  zerolog.Logger
}

func NewHandler(service *Service, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAuthRoutes mounts the unauthenticated account endpoints on g.
func (h *Handler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/signup", h.Signup)
	g.POST("/login", h.Login)
	g.POST("/reset-request", h.ResetRequest)
	g.POST("/reset", h.Reset)
}

// RegisterAdminRoutes mounts doctor-only account management on g.
func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	doctor := auth.RequireRole(auth.RoleDoctor)
	g.GET("/users", h.List, doctor)
	g.DELETE("/users/:id", h.Delete, doctor)
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u, err := h.service.Signup(c.Request().Context(), req.Username, req.Password, req.Role)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	token, u, err := h.service.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, Username: u.Username, Role: u.Role})
}

type resetRequestRequest struct {
	Username string `json:"username"`
}

func (h *Handler) ResetRequest(c echo.Context) error {
	var req resetRequestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	t, err := h.service.CreateResetToken(c.Request().Context(), req.Username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return h.mapError(c, err)
	}
	if err == nil {
		// The token is delivered out of band. It must never appear in the
		// response body, which any anonymous caller can read.
		h.logger.Info().
			Str("username", req.Username).
			Str("token", t.Token).
			Time("expires_at", t.ExpiresAt).
			Msg("password reset token issued")
	}
	// An unknown username gets the same response as a known one so the
	// endpoint cannot be used to enumerate accounts.
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) Reset(c echo.Context) error {
	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *Handler) List(c echo.Context) error {
	users, err := h.service.List(c.Request().Context())
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return h.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("user request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
