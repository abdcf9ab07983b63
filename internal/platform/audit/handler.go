package audit

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emradmin/internal/platform/auth"
	"github.com/ehr/emradmin/internal/platform/fhir"
	"github.com/ehr/emradmin/pkg/pagination"
)

// Lister reads back recorded events.
type Lister interface {
	ListBySubject(ctx context.Context, subject string, limit int) ([]*Event, error)
}

// Handler exposes the audit trail of an account.
type Handler struct {
	lister Lister
}

func NewHandler(lister Lister) *Handler {
	return &Handler{lister: lister}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "auditor"))
	read.GET("/accounts/:id/audit-events", h.ListForAccount)
}

func (h *Handler) ListForAccount(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	limit := pagination.FromContext(c).Limit
	events, err := h.lister.ListBySubject(c.Request().Context(), fhir.FormatReference("Practitioner", id.String()), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*Event{}
	}
	return c.JSON(http.StatusOK, events)
}
