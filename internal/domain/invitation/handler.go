package invitation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emradmin/internal/domain/account"
	"github.com/ehr/emradmin/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "registrar"))
	readGroup.GET("/invitations/:id", h.GetInvitation)
	readGroup.GET("/invitations/:id/activation-link", h.GetActivationLink)
	readGroup.GET("/accounts/:id/invitation", h.GetAccountInvitation)

	writeGroup := api.Group("", auth.RequireRole("admin"))
	writeGroup.POST("/accounts/:id/invitations/resend", h.Resend)
	writeGroup.POST("/invitations/:id/cancel", h.Cancel)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrEmailRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "invitation not found")
	case errors.Is(err, account.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) GetInvitation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetActivationLink(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	link, err := h.svc.ActivationLink(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, link)
}

func (h *Handler) GetAccountInvitation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.ForAccount(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) Resend(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req resendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, err := h.svc.Resend(c.Request().Context(), id, req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if inv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "invitation not found")
	}
	return c.JSON(http.StatusOK, inv)
}
