package invitation

import (
	"context"
	"time"

	"github.com/ehr/emradmin/internal/domain/account"
	"github.com/ehr/emradmin/internal/platform/notification"
)

// Notifier delivers a freshly issued invitation to the invitee.
type Notifier interface {
	SendInvitation(ctx context.Context, inv *Invitation, a *account.Account) error
}

// EmailNotifier mails the activation link using the account-invitation
// template.
type EmailNotifier struct {
	mailer       *notification.Mailer
	baseURL      string
	organization string
	now          func() time.Time
}

func NewEmailNotifier(mailer *notification.Mailer, baseURL, organization string) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, baseURL: baseURL, organization: organization, now: time.Now}
}

func (n *EmailNotifier) SendInvitation(ctx context.Context, inv *Invitation, a *account.Account) error {
	link := GenerateActivationLink(inv, n.baseURL, n.now())
	return n.mailer.SendTemplate(ctx, notification.TemplateInvitation, map[string]string{
		"name":            a.Name(),
		"organization":    n.organization,
		"activation_link": link.URL,
		"expires_at":      link.ExpiresAt.UTC().Format(time.RFC1123),
	}, inv.Email)
}
