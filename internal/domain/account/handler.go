package account

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emradmin/internal/platform/auth"
	"github.com/ehr/emradmin/internal/platform/bulk"
	"github.com/ehr/emradmin/internal/platform/fhir"
	"github.com/ehr/emradmin/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	// Read endpoints: admin, registrar
	readGroup := api.Group("", auth.RequireRole("admin", "registrar"))
	readGroup.GET("/accounts", h.ListAccounts)
	readGroup.GET("/accounts/:id", h.GetAccount)
	readGroup.GET("/accounts/:id/roles", h.ListRoles)
	readGroup.GET("/accounts/:id/role-conflicts", h.GetRoleConflicts)
	readGroup.POST("/role-conflicts", h.CheckRoleConflicts)

	// Write endpoints: admin only
	writeGroup := api.Group("", auth.RequireRole("admin"))
	writeGroup.POST("/accounts", h.CreateAccount)
	writeGroup.POST("/accounts/:id/deactivate", h.DeactivateAccount)
	writeGroup.POST("/accounts/:id/activate", h.ActivateAccount)
	writeGroup.POST("/accounts/:id/roles", h.AssignRole)
	writeGroup.DELETE("/accounts/:id/roles/:assignment_id", h.UnassignRole)
	writeGroup.POST("/accounts/bulk/deactivate", h.bulk(bulk.OpDeactivate))
	writeGroup.POST("/accounts/bulk/activate", h.bulk(bulk.OpActivate))
	writeGroup.POST("/accounts/bulk/assign-role", h.bulk(bulk.OpAssignRole))

	if fhirGroup != nil {
		fhirRead := fhirGroup.Group("", auth.RequireRole("admin", "registrar"))
		fhirRead.GET("/Practitioner/:id", h.GetPractitionerFHIR)
	}
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrSelfDeactivation):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Accounts --

func (h *Handler) CreateAccount(c echo.Context) error {
	var a Account
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAccount(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAccount(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAccount(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAccounts(c echo.Context) error {
	p := pagination.FromContext(c)
	f := Filter{Query: c.QueryParam("q"), Role: c.QueryParam("role")}
	if v := c.QueryParam("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid active filter")
		}
		f.Active = &active
	}
	accounts, total, err := h.svc.SearchAccounts(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if accounts == nil {
		accounts = []*Account{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(accounts, total, p.Limit, p.Offset))
}

func (h *Handler) DeactivateAccount(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.DeactivateAccount(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ActivateAccount(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.ActivateAccount(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- Roles --

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,role_code"`
}

type assignRoleResponse struct {
	Assignment *RoleAssignment `json:"assignment"`
	Conflicts  []Conflict      `json:"conflicts"`
}

func (h *Handler) AssignRole(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	var req assignRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	assignment, conflicts, err := h.svc.AssignRole(c.Request().Context(), id, req.Role)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, assignRoleResponse{Assignment: assignment, Conflicts: conflicts})
}

func (h *Handler) UnassignRole(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	assignmentID, err := parseParam(c, "assignment_id")
	if err != nil {
		return err
	}
	if err := h.svc.UnassignRole(c.Request().Context(), id, assignmentID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListRoles(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	roles, err := h.svc.ListRoles(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if roles == nil {
		roles = []*RoleAssignment{}
	}
	return c.JSON(http.StatusOK, roles)
}

func (h *Handler) GetRoleConflicts(c echo.Context) error {
	id, err := parseParam(c, "id")
	if err != nil {
		return err
	}
	conflicts, err := h.svc.RoleConflicts(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conflicts)
}

type conflictCheckRequest struct {
	Roles []string `json:"roles"`
}

// CheckRoleConflicts evaluates an arbitrary role set without touching the
// store.
func (h *Handler) CheckRoleConflicts(c echo.Context) error {
	var req conflictCheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, DetectConflicts(req.Roles))
}

// -- Bulk --

type bulkRequest struct {
	IDs  []string `json:"ids" validate:"required,min=1,max=500"`
	Role string   `json:"role,omitempty" validate:"omitempty,role_code"`
}

type bulkResponse struct {
	*bulk.Result
	SelfExcluded bool `json:"selfExcluded"`
}

func (h *Handler) bulk(op bulk.OperationType) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req bulkRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		ctx := c.Request().Context()
		result, err := h.svc.RunBulk(ctx, auth.UserIDFromContext(ctx), op, req.IDs, req.Role, nil)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, bulkResponse{Result: result, SelfExcluded: result.SelfExcluded()})
	}
}

// -- FHIR --

func (h *Handler) GetPractitionerFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Practitioner", c.Param("id")))
	}
	a, err := h.svc.GetAccount(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Practitioner", c.Param("id")))
	}
	return c.JSON(http.StatusOK, a.ToFHIR())
}
