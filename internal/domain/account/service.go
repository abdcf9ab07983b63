package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/emradmin/internal/platform/audit"
	"github.com/ehr/emradmin/internal/platform/bulk"
)

type Service struct {
	accounts Repository
	roles    RoleAssigner
	audit    audit.Recorder
	inviter  Inviter
	logger   zerolog.Logger
}

func NewService(accounts Repository, roles RoleAssigner, rec audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{accounts: accounts, roles: roles, audit: rec, logger: logger}
}

// SetInviter attaches the collaborator that invites newly created accounts.
func (s *Service) SetInviter(i Inviter) {
	s.inviter = i
}

// -- Accounts --

func (s *Service) CreateAccount(ctx context.Context, a *Account) error {
	a.Username = strings.TrimSpace(a.Username)
	a.Email = strings.TrimSpace(a.Email)
	if a.Username == "" {
		return validationError("username is required")
	}
	if a.Email == "" {
		return validationError("email is required")
	}
	if !strings.Contains(a.Email, "@") {
		return validationError("email %q is not a valid address", a.Email)
	}
	a.Active = true
	if err := s.accounts.Create(ctx, a); err != nil {
		return err
	}
	s.record(ctx, audit.ActionCreate, a, "Account created", map[string]string{"username": a.Username})

	if s.inviter != nil {
		if err := s.inviter.Invite(ctx, a); err != nil {
			s.logger.Warn().Err(err).Str("account_id", a.ID.String()).Msg("failed to send invitation for new account")
		}
	}
	return nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *Service) SearchAccounts(ctx context.Context, f Filter, limit, offset int) ([]*Account, int, error) {
	return s.accounts.Search(ctx, f, limit, offset)
}

// DeactivateAccount deactivates a single account on behalf of actorID.
// Acting on one's own account fails with ErrSelfDeactivation and nothing is
// written.
func (s *Service) DeactivateAccount(ctx context.Context, actorID string, id uuid.UUID) (*Account, error) {
	if actor, err := uuid.Parse(actorID); err == nil && actor == id {
		return nil, ErrSelfDeactivation
	}
	return s.setActive(ctx, id, false, nil)
}

func (s *Service) ActivateAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.setActive(ctx, id, true, nil)
}

func (s *Service) setActive(ctx context.Context, id uuid.UUID, active bool, details map[string]string) (*Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Active = active
	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, err
	}

	desc := "Account deactivated"
	if active {
		desc = "Account reactivated"
	}
	d := map[string]string{"active": fmt.Sprint(active)}
	for k, v := range details {
		d[k] = v
	}
	s.record(ctx, audit.ActionUpdate, a, desc, d)
	return a, nil
}

// record writes an audit event. A failure is logged and never undoes or
// fails the mutation that preceded it.
func (s *Service) record(ctx context.Context, action audit.Action, a *Account, desc string, details map[string]string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordEvent(ctx, action, a.Reference(), desc, details); err != nil {
		s.logger.Warn().Err(err).
			Str("account_id", a.ID.String()).
			Str("action", action.String()).
			Msg("audit event not recorded")
	}
}

// -- Roles --

// AssignRole grants roleCode and returns the conflicts present in the
// account's resulting role set. Conflicts are reported, never enforced.
func (s *Service) AssignRole(ctx context.Context, accountID uuid.UUID, roleCode string) (*RoleAssignment, []Conflict, error) {
	roleCode = strings.TrimSpace(roleCode)
	if roleCode == "" {
		return nil, nil, validationError("role is required")
	}
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	assignment, err := s.roles.Assign(ctx, accountID, roleCode)
	if err != nil {
		return nil, nil, err
	}
	if !a.HasRole(roleCode) {
		a.Roles = append(a.Roles, roleCode)
	}
	s.record(ctx, audit.ActionUpdate, a, "Role assigned", map[string]string{"role": roleCode})
	return assignment, DetectConflicts(a.Roles), nil
}

func (s *Service) UnassignRole(ctx context.Context, accountID, assignmentID uuid.UUID) error {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	assignments, err := s.roles.ListAssignments(ctx, accountID)
	if err != nil {
		return err
	}
	var role string
	for _, ra := range assignments {
		if ra.ID == assignmentID {
			role = ra.RoleName
		}
	}
	if role == "" {
		return ErrNotFound
	}
	if err := s.roles.Unassign(ctx, assignmentID); err != nil {
		return err
	}
	s.record(ctx, audit.ActionUpdate, a, "Role unassigned", map[string]string{"role": role})
	return nil
}

func (s *Service) ListRoles(ctx context.Context, accountID uuid.UUID) ([]*RoleAssignment, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.roles.ListAssignments(ctx, accountID)
}

// RoleConflicts runs conflict detection over the account's active roles.
func (s *Service) RoleConflicts(ctx context.Context, accountID uuid.UUID) ([]Conflict, error) {
	assignments, err := s.ListRoles(ctx, accountID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(assignments))
	for _, ra := range assignments {
		codes = append(codes, ra.RoleName)
	}
	return DetectConflicts(codes), nil
}

// -- Bulk --

// NewExecutor returns a bulk executor for actorID that names failed items
// after their accounts.
func (s *Service) NewExecutor(actorID string, sel *bulk.Selection) *bulk.Executor {
	e := bulk.NewExecutor(actorID, sel)
	e.SetNameResolver(s.accountName)
	return e
}

func (s *Service) accountName(ctx context.Context, id string) string {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ""
	}
	a, err := s.accounts.GetByID(ctx, uid)
	if err != nil {
		return ""
	}
	return a.Name()
}

func (s *Service) DeactivateAction() bulk.Action {
	return s.activeAction(false)
}

func (s *Service) ActivateAction() bulk.Action {
	return s.activeAction(true)
}

func (s *Service) activeAction(active bool) bulk.Action {
	return func(ctx context.Context, id string) error {
		uid, err := parseID(id)
		if err != nil {
			return coded(err)
		}
		_, err = s.setActive(ctx, uid, active, map[string]string{"source": "bulk"})
		return coded(err)
	}
}

// AssignRoleAction grants roleCode to each item.
func (s *Service) AssignRoleAction(roleCode string) bulk.Action {
	return func(ctx context.Context, id string) error {
		uid, err := parseID(id)
		if err != nil {
			return coded(err)
		}
		_, _, err = s.AssignRole(ctx, uid, roleCode)
		return coded(err)
	}
}

// RunBulk executes op for ids on behalf of actorID. Only preconditions
// fail the call; item failures land in the result.
func (s *Service) RunBulk(ctx context.Context, actorID string, op bulk.OperationType, ids []string, roleCode string, onProgress bulk.ProgressFunc) (*bulk.Result, error) {
	var action bulk.Action
	switch op {
	case bulk.OpDeactivate:
		action = s.DeactivateAction()
	case bulk.OpActivate:
		action = s.ActivateAction()
	case bulk.OpAssignRole:
		if strings.TrimSpace(roleCode) == "" {
			return nil, validationError("role is required for %s", op)
		}
		action = s.AssignRoleAction(roleCode)
	default:
		return nil, validationError("unknown bulk operation %q", op)
	}

	sel := bulk.NewSelection()
	sel.SelectAll(canonicalIDs(ids))
	e := s.NewExecutor(canonicalID(actorID), sel)

	result, err := e.ExecuteSelection(ctx, op, action, onProgress)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("operation", string(op)).
		Str("actor", actorID).
		Int("total", result.Total).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Bool("self_excluded", result.SelfExcluded()).
		Msg("bulk operation finished")
	return result, nil
}

// canonicalID rewrites any spelling uuid.Parse accepts (upper case, braces,
// urn:uuid:) to the lower-case hyphenated form, so self-exclusion compares
// like with like. Unparseable input is returned unchanged.
func canonicalID(id string) string {
	uid, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return uid.String()
}

func canonicalIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = canonicalID(id)
	}
	return out
}

func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, validationError("invalid account id %q", id)
	}
	return uid, nil
}
