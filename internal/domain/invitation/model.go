package invitation

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusBounced   Status = "bounced"
)

// ExpiryWindow is how long an unaccepted invitation stays usable.
const ExpiryWindow = 7 * 24 * time.Hour

const (
	TagEmailBounced = "email-bounced"
	TagCancelled    = "cancelled"
)

// Invitation maps to the invitation table. A non-nil LinkedUserID means the
// invitee has accepted and set a password.
type Invitation struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	AccountID    uuid.UUID  `db:"account_id" json:"account_id"`
	Email        string     `db:"email" json:"email"`
	FirstName    *string    `db:"first_name" json:"first_name,omitempty"`
	LastName     *string    `db:"last_name" json:"last_name,omitempty"`
	LinkedUserID *string    `db:"linked_user_id" json:"linked_user_id,omitempty"`
	Tags         []string   `db:"tags" json:"tags"`
	Secret       *string    `db:"secret" json:"-"`
	CreatedAt    *time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func (i *Invitation) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// issuedAt returns the creation time, or now when the record has none.
func issuedAt(inv *Invitation, now time.Time) time.Time {
	if inv == nil || inv.CreatedAt == nil || inv.CreatedAt.IsZero() {
		return now
	}
	return *inv.CreatedAt
}

// EvaluateStatus derives the lifecycle state of inv at now. The first
// matching rule wins: accepted, bounced, cancelled, expired, pending. A nil
// invitation is pending. linkedUser is the account's linked user, if known;
// either it or the invitation's own link marks acceptance.
func EvaluateStatus(inv *Invitation, linkedUser *string, now time.Time) Status {
	if linkedUser != nil && *linkedUser != "" {
		return StatusAccepted
	}
	if inv == nil {
		return StatusPending
	}
	if inv.LinkedUserID != nil && *inv.LinkedUserID != "" {
		return StatusAccepted
	}
	if inv.HasTag(TagEmailBounced) {
		return StatusBounced
	}
	if inv.HasTag(TagCancelled) {
		return StatusCancelled
	}
	if now.Sub(issuedAt(inv, now)) >= ExpiryWindow {
		return StatusExpired
	}
	return StatusPending
}

// IsValid reports whether inv can still be accepted.
func IsValid(inv *Invitation, now time.Time) bool {
	return EvaluateStatus(inv, nil, now) == StatusPending
}

// ActivationLink is the URL an invitee follows to set a password.
type ActivationLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateActivationLink builds the activation URL under baseURL. Without a
// linked user the invitee is sent to the sign-in page.
func GenerateActivationLink(inv *Invitation, baseURL string, now time.Time) ActivationLink {
	base := strings.TrimRight(baseURL, "/")
	link := ActivationLink{ExpiresAt: issuedAt(inv, now).Add(ExpiryWindow)}

	if inv == nil || inv.LinkedUserID == nil || *inv.LinkedUserID == "" {
		link.URL = base + "/signin"
		return link
	}

	link.URL = base + "/setpassword/" + url.PathEscape(*inv.LinkedUserID)
	if inv.Secret != nil && *inv.Secret != "" {
		link.URL += "?secret=" + url.QueryEscape(*inv.Secret)
	}
	return link
}

// View is an invitation with its status evaluated at read time.
type View struct {
	Invitation *Invitation `json:"invitation,omitempty"`
	Status     Status      `json:"status"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
}

func newView(inv *Invitation, now time.Time) *View {
	v := &View{Invitation: inv, Status: EvaluateStatus(inv, nil, now)}
	if inv != nil {
		exp := issuedAt(inv, now).Add(ExpiryWindow)
		v.ExpiresAt = &exp
	}
	return v
}
