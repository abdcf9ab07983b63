package account

import (
	"fmt"
	"strings"
)

type ConflictType string

const (
	ConflictSeparationOfDuties ConflictType = "separation_of_duties"
	ConflictRedundantRoles     ConflictType = "redundant_roles"
	ConflictPermission         ConflictType = "permission_conflict"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Conflict describes a problematic combination of assigned roles.
type Conflict struct {
	Type     ConflictType `json:"type"`
	Roles    []string     `json:"roles"`
	Message  string       `json:"message"`
	Severity Severity     `json:"severity"`
}

type rolePair struct {
	a, b   string
	reason string
}

// Pairs of roles one identity must not hold together.
var separationOfDuties = []rolePair{
	{"admin", "billing", "administrators must not approve their own financial transactions"},
	{"billing", "auditor", "billing staff must not audit their own claims"},
	{"prescriber", "pharmacist", "the same identity must not prescribe and dispense"},
	{"admin", "auditor", "administrators must not audit their own configuration changes"},
}

// Roles that already grant every role listed with them.
var impliedRoles = []struct {
	role    string
	implies []string
}{
	{"superadmin", []string{"admin", "billing", "viewer", "editor", "auditor"}},
	{"admin", []string{"viewer", "editor"}},
	{"physician", []string{"viewer"}},
}

// Read-only roles that contradict a write role.
var permissionConflicts = []rolePair{
	{"viewer", "editor", "read-only access contradicts edit access"},
	{"readonly", "editor", "read-only access contradicts edit access"},
	{"readonly", "admin", "read-only access contradicts administrative access"},
}

// DetectConflicts reports every conflict in roles, separation-of-duties
// first, then redundant roles, then permission conflicts. Duplicate codes
// are ignored.
func DetectConflicts(roles []string) []Conflict {
	has := make(map[string]bool, len(roles))
	for _, r := range roles {
		has[r] = true
	}
	conflicts := []Conflict{}
	if len(has) < 2 {
		return conflicts
	}

	for _, p := range separationOfDuties {
		if has[p.a] && has[p.b] {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictSeparationOfDuties,
				Roles:    []string{p.a, p.b},
				Message:  fmt.Sprintf("%s and %s violate separation of duties: %s", p.a, p.b, p.reason),
				Severity: SeverityError,
			})
		}
	}

	for _, ir := range impliedRoles {
		if !has[ir.role] {
			continue
		}
		var redundant []string
		for _, r := range ir.implies {
			if has[r] {
				redundant = append(redundant, r)
			}
		}
		if len(redundant) == 0 {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:     ConflictRedundantRoles,
			Roles:    append([]string{ir.role}, redundant...),
			Message:  fmt.Sprintf("%s already includes %s", ir.role, strings.Join(redundant, ", ")),
			Severity: SeverityWarning,
		})
	}

	for _, p := range permissionConflicts {
		if has[p.a] && has[p.b] {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictPermission,
				Roles:    []string{p.a, p.b},
				Message:  fmt.Sprintf("%s and %s conflict: %s", p.a, p.b, p.reason),
				Severity: SeverityWarning,
			})
		}
	}

	return conflicts
}

// HasBlockingConflict reports whether any conflict has error severity.
func HasBlockingConflict(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityError {
			return true
		}
	}
	return false
}
