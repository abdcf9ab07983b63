package account

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/emradmin/internal/platform/fhir"
)

// Account maps to the system_user table. Roles is the set of role codes
// from active user_role_assignment rows.
type Account struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	FirstName   *string   `db:"first_name" json:"first_name,omitempty"`
	LastName    *string   `db:"last_name" json:"last_name,omitempty"`
	DisplayName *string   `db:"display_name" json:"display_name,omitempty"`
	Email       string    `db:"email" json:"email"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Active      bool      `db:"active" json:"active"`
	Roles       []string  `db:"roles" json:"roles"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Name returns the best available display name.
func (a *Account) Name() string {
	if a.DisplayName != nil && *a.DisplayName != "" {
		return *a.DisplayName
	}
	full := strings.TrimSpace(strPtrVal(a.FirstName) + " " + strPtrVal(a.LastName))
	if full != "" {
		return full
	}
	return a.Username
}

// HasRole reports whether code is among the account's assigned roles.
func (a *Account) HasRole(code string) bool {
	for _, r := range a.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// ToFHIR renders the account as a FHIR Practitioner.
func (a *Account) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Practitioner",
		"id":           a.ID.String(),
		"active":       a.Active,
		"identifier": []fhir.Identifier{
			{System: "urn:emradmin:username", Value: a.Username},
		},
		"meta": fhir.Meta{LastUpdated: a.UpdatedAt},
	}

	name := fhir.HumanName{Use: "official", Text: a.Name()}
	if a.LastName != nil {
		name.Family = *a.LastName
	}
	if a.FirstName != nil {
		name.Given = []string{*a.FirstName}
	}
	result["name"] = []fhir.HumanName{name}

	telecoms := []fhir.ContactPoint{{System: "email", Value: a.Email, Use: "work"}}
	if a.Phone != nil {
		telecoms = append(telecoms, fhir.ContactPoint{System: "phone", Value: *a.Phone, Use: "work"})
	}
	result["telecom"] = telecoms

	return result
}

// Reference is the FHIR reference used as the audit subject.
func (a *Account) Reference() string {
	return fhir.FormatReference("Practitioner", a.ID.String())
}

// RoleAssignment maps to the user_role_assignment table.
type RoleAssignment struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	RoleName  string     `db:"role_name" json:"role_name"`
	Active    bool       `db:"active" json:"active"`
	GrantedBy *string    `db:"granted_by" json:"granted_by,omitempty"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Filter narrows account searches. Zero values match everything.
type Filter struct {
	Query  string
	Active *bool
	Role   string
}

func strPtrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
