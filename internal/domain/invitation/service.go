package invitation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/emradmin/internal/domain/account"
	"github.com/ehr/emradmin/internal/platform/audit"
	"github.com/ehr/emradmin/internal/platform/fhir"
	"github.com/ehr/emradmin/internal/platform/metrics"
)

// AccountReader is the part of the account store invitations need.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

type Service struct {
	repo     Repository
	accounts AccountReader
	notifier Notifier
	audit    audit.Recorder
	baseURL  string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, accounts AccountReader, notifier Notifier, rec audit.Recorder, baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		notifier: notifier,
		audit:    rec,
		baseURL:  baseURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Invite issues the first invitation for a new account.
func (s *Service) Invite(ctx context.Context, a *account.Account) error {
	_, err := s.Resend(ctx, a.ID, a.Email)
	return err
}

// Resend replaces any invitations the account has with a new one sent to
// email. Clearing old invitations is best effort. If the new record cannot be
// read back, a minimal record built from the create response is returned.
func (s *Service) Resend(ctx context.Context, accountID uuid.UUID, email string) (*Invitation, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	log := s.logger.With().Str("account_id", accountID.String()).Logger()

	s.clear(ctx, log, accountID)

	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	inv := &Invitation{
		AccountID: accountID,
		Email:     email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Tags:      []string{},
	}
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	inv.Secret = &secret
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	metrics.InvitationsResentTotal.Inc()

	if s.notifier != nil {
		if err := s.notifier.SendInvitation(ctx, inv, a); err != nil {
			log.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("invitation notification failed")
		}
	}
	s.record(ctx, audit.ActionCreate, accountID, "Invitation sent", map[string]string{
		"invitation": inv.ID.String(),
		"email":      email,
	})

	stored, err := s.repo.GetByID(ctx, inv.ID)
	if err != nil {
		log.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("could not re-read invitation")
		return &Invitation{
			ID:        inv.ID,
			AccountID: accountID,
			Email:     email,
			Tags:      []string{},
			CreatedAt: inv.CreatedAt,
		}, nil
	}
	return stored, nil
}

func (s *Service) clear(ctx context.Context, log zerolog.Logger, accountID uuid.UUID) {
	existing, err := s.repo.SearchByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrSearchUnsupported) {
			log.Debug().Msg("invitation search unsupported; skipping cleanup")
		} else {
			log.Warn().Err(err).Msg("could not list existing invitations")
		}
		return
	}
	for _, inv := range existing {
		if err := s.repo.Delete(ctx, inv.ID); err != nil {
			log.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("could not delete old invitation")
		}
	}
}

// Cancel tags the invitation as cancelled. It returns (nil, nil) when the
// invitation is missing or the store rejects the read or update.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	log := s.logger.With().Str("invitation_id", id.String()).Logger()

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.Warn().Err(err).Msg("cancel: invitation not readable")
		return nil, nil
	}

	tags := make([]string, 0, len(inv.Tags)+1)
	for _, t := range inv.Tags {
		if t != TagCancelled {
			tags = append(tags, t)
		}
	}
	inv.Tags = append(tags, TagCancelled)

	if err := s.repo.Update(ctx, inv); err != nil {
		log.Warn().Err(err).Msg("cancel: update rejected")
		return nil, nil
	}
	metrics.InvitationsCancelledTotal.Inc()
	s.record(ctx, audit.ActionUpdate, inv.AccountID, "Invitation cancelled", map[string]string{
		"invitation": inv.ID.String(),
	})
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return newView(inv, s.now()), nil
}

// ForAccount returns the newest invitation for the account. With no
// invitation, or a store that cannot search, the view is pending and empty.
func (s *Service) ForAccount(ctx context.Context, accountID uuid.UUID) (*View, error) {
	list, err := s.repo.SearchByAccount(ctx, accountID)
	if errors.Is(err, ErrSearchUnsupported) {
		s.logger.Debug().Str("account_id", accountID.String()).Msg("invitation search unsupported")
		return newView(nil, s.now()), nil
	}
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return newView(nil, s.now()), nil
	}
	return newView(list[0], s.now()), nil
}

func (s *Service) ActivationLink(ctx context.Context, id uuid.UUID) (*ActivationLink, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	link := GenerateActivationLink(inv, s.baseURL, s.now())
	return &link, nil
}

func (s *Service) record(ctx context.Context, action audit.Action, accountID uuid.UUID, desc string, details map[string]string) {
	if s.audit == nil {
		return
	}
	subject := fhir.FormatReference("Practitioner", accountID.String())
	if err := s.audit.RecordEvent(ctx, action, subject, desc, details); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("audit event not recorded")
	}
}

func newSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
