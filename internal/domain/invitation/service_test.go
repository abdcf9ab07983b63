package invitation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/emradmin/internal/domain/account"
	"github.com/ehr/emradmin/internal/platform/audit"
	"github.com/ehr/emradmin/internal/platform/notification"
)

// -- Mocks --

type mockRepo struct {
	invitations map[uuid.UUID]*Invitation
	clock       time.Time

	searchErr error
	getErr    error
	updateErr error
	deleteErr error

	creates int
	deletes []uuid.UUID
	calls   []string
}

func newMockRepo(clock time.Time) *mockRepo {
	return &mockRepo{invitations: make(map[uuid.UUID]*Invitation), clock: clock}
}

func (m *mockRepo) Create(_ context.Context, inv *Invitation) error {
	m.calls = append(m.calls, "create")
	m.creates++
	inv.ID = uuid.New()
	inv.CreatedAt = at(m.clock)
	inv.UpdatedAt = m.clock
	cp := *inv
	m.invitations[inv.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Invitation, error) {
	m.calls = append(m.calls, "get")
	if m.getErr != nil {
		return nil, m.getErr
	}
	inv, ok := m.invitations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	cp.Tags = append([]string(nil), inv.Tags...)
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, inv *Invitation) error {
	m.calls = append(m.calls, "update")
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *inv
	m.invitations[inv.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.calls = append(m.calls, "delete")
	m.deletes = append(m.deletes, id)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.invitations, id)
	return nil
}

func (m *mockRepo) SearchByAccount(_ context.Context, accountID uuid.UUID) ([]*Invitation, error) {
	m.calls = append(m.calls, "search")
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []*Invitation
	for _, inv := range m.invitations {
		if inv.AccountID == accountID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(*out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) add(accountID uuid.UUID, created time.Time, tags ...string) *Invitation {
	inv := &Invitation{ID: uuid.New(), AccountID: accountID, Email: "x@example.org", CreatedAt: at(created), Tags: tags}
	m.invitations[inv.ID] = inv
	return inv
}

type mockAccounts struct {
	accounts map[uuid.UUID]*account.Account
}

func (m *mockAccounts) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a, nil
}

type mockNotifier struct {
	sent []*Invitation
	err  error
}

func (m *mockNotifier) SendInvitation(_ context.Context, inv *Invitation, _ *account.Account) error {
	m.sent = append(m.sent, inv)
	return m.err
}

type mockRecorder struct {
	descs []string
}

func (m *mockRecorder) RecordEvent(_ context.Context, _ audit.Action, _, desc string, _ map[string]string) error {
	m.descs = append(m.descs, desc)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	notifier *mockNotifier
	audit    *mockRecorder
	acct     *account.Account
}

func newFixture() *fixture {
	first, last := "Grace", "Hopper"
	acct := &account.Account{ID: uuid.New(), Username: "ghopper", Email: "grace@example.org", FirstName: &first, LastName: &last}
	repo := newMockRepo(base)
	n := &mockNotifier{}
	rec := &mockRecorder{}
	svc := NewService(repo, &mockAccounts{accounts: map[uuid.UUID]*account.Account{acct.ID: acct}}, n, rec,
		"https://emr.example.org", zerolog.Nop())
	svc.now = func() time.Time { return base }
	return &fixture{svc: svc, repo: repo, notifier: n, audit: rec, acct: acct}
}

// -- Resend --

func TestService_Resend_ReplacesExisting(t *testing.T) {
	f := newFixture()
	old1 := f.repo.add(f.acct.ID, base.Add(-10*24*time.Hour))
	old2 := f.repo.add(f.acct.ID, base.Add(-2*24*time.Hour), TagEmailBounced)
	other := f.repo.add(uuid.New(), base)

	inv, err := f.svc.Resend(context.Background(), f.acct.ID, " grace@example.org ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.repo.deletes) != 2 {
		t.Errorf("expected 2 deletes, got %d", len(f.repo.deletes))
	}
	for _, id := range []uuid.UUID{old1.ID, old2.ID} {
		if _, ok := f.repo.invitations[id]; ok {
			t.Errorf("old invitation %s should be gone", id)
		}
	}
	if _, ok := f.repo.invitations[other.ID]; !ok {
		t.Error("another account's invitation must survive")
	}
	if inv.Email != "grace@example.org" || inv.AccountID != f.acct.ID {
		t.Errorf("unexpected invitation %+v", inv)
	}
	if inv.FirstName == nil || *inv.FirstName != "Grace" || inv.LastName == nil || *inv.LastName != "Hopper" {
		t.Error("expected name fields copied from account")
	}
	if inv.Secret == nil || *inv.Secret == "" {
		t.Error("expected a one-time secret")
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("expected one notification, got %d", len(f.notifier.sent))
	}
	if got := EvaluateStatus(inv, nil, base); got != StatusPending {
		t.Errorf("new invitation should be pending, got %s", got)
	}
	if len(f.audit.descs) != 1 || f.audit.descs[0] != "Invitation sent" {
		t.Errorf("unexpected audit %v", f.audit.descs)
	}
}

func TestService_Resend_NoPriorInvitation(t *testing.T) {
	f := newFixture()

	inv, err := f.svc.Resend(context.Background(), f.acct.ID, "grace@example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.repo.deletes) != 0 {
		t.Error("nothing should be deleted")
	}
	if f.repo.creates != 1 || inv == nil {
		t.Error("expected the invitation to be created")
	}
}

func TestService_Resend_EmailRequired(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Resend(context.Background(), f.acct.ID, "   ")
	if !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
	if len(f.repo.calls) != 0 {
		t.Errorf("store must not be touched, got calls %v", f.repo.calls)
	}
}

func TestService_Resend_SearchUnsupported(t *testing.T) {
	f := newFixture()
	f.repo.add(f.acct.ID, base.Add(-time.Hour))
	f.repo.searchErr = ErrSearchUnsupported

	inv, err := f.svc.Resend(context.Background(), f.acct.ID, "grace@example.org")
	if err != nil {
		t.Fatalf("unsupported search must not fail resend: %v", err)
	}
	if inv == nil || f.repo.creates != 1 {
		t.Error("expected a new invitation")
	}
	if len(f.repo.deletes) != 0 {
		t.Error("no deletes without search")
	}
}

func TestService_Resend_DeleteFailureIgnored(t *testing.T) {
	f := newFixture()
	f.repo.add(f.acct.ID, base.Add(-time.Hour))
	f.repo.deleteErr = errors.New("forbidden")

	if _, err := f.svc.Resend(context.Background(), f.acct.ID, "grace@example.org"); err != nil {
		t.Fatalf("delete failure must not fail resend: %v", err)
	}
}

func TestService_Resend_AccountMissing(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Resend(context.Background(), uuid.New(), "a@example.org")
	if !errors.Is(err, account.ErrNotFound) {
		t.Errorf("expected account.ErrNotFound, got %v", err)
	}
	if f.repo.creates != 0 {
		t.Error("nothing should be created")
	}
}

func TestService_Resend_RereadFallback(t *testing.T) {
	f := newFixture()
	f.repo.getErr = errors.New("read timeout")

	inv, err := f.svc.Resend(context.Background(), f.acct.ID, "grace@example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.ID == uuid.Nil || inv.Email != "grace@example.org" || inv.AccountID != f.acct.ID {
		t.Errorf("unexpected synthetic record %+v", inv)
	}
	if inv.CreatedAt == nil || !inv.CreatedAt.Equal(base) {
		t.Error("synthetic record should carry the create timestamp")
	}
	if inv.Secret != nil || inv.FirstName != nil {
		t.Error("synthetic record should be minimal")
	}
}

func TestService_Resend_NotifierFailureTolerated(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("smtp down")

	if _, err := f.svc.Resend(context.Background(), f.acct.ID, "grace@example.org"); err != nil {
		t.Fatalf("notification failure must not fail resend: %v", err)
	}
}

func TestService_Invite(t *testing.T) {
	f := newFixture()
	if err := f.svc.Invite(context.Background(), f.acct); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Email != f.acct.Email {
		t.Error("expected invitation to the account email")
	}
}

// -- Cancel --

func TestService_Cancel(t *testing.T) {
	f := newFixture()
	inv := f.repo.add(f.acct.ID, base.Add(-time.Hour), TagEmailBounced)

	got, err := f.svc.Cancel(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || !got.HasTag(TagCancelled) || !got.HasTag(TagEmailBounced) {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestService_Cancel_Idempotent(t *testing.T) {
	f := newFixture()
	inv := f.repo.add(f.acct.ID, base.Add(-time.Hour))

	f.svc.Cancel(context.Background(), inv.ID)
	got, _ := f.svc.Cancel(context.Background(), inv.ID)

	n := 0
	for _, tag := range got.Tags {
		if tag == TagCancelled {
			n++
		}
	}
	if n != 1 {
		t.Errorf("expected exactly one cancelled tag, got %v", got.Tags)
	}
	if EvaluateStatus(got, nil, base) != StatusCancelled {
		t.Error("expected cancelled status")
	}
}

func TestService_Cancel_Missing(t *testing.T) {
	f := newFixture()
	got, err := f.svc.Cancel(context.Background(), uuid.New())
	if got != nil || err != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

func TestService_Cancel_UpdateRejected(t *testing.T) {
	f := newFixture()
	inv := f.repo.add(f.acct.ID, base)
	f.repo.updateErr = errors.New("forbidden")

	got, err := f.svc.Cancel(context.Background(), inv.ID)
	if got != nil || err != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", got, err)
	}
	if f.repo.invitations[inv.ID].HasTag(TagCancelled) {
		t.Error("stored record must be unchanged")
	}
}

// -- Reads --

func TestService_Get(t *testing.T) {
	f := newFixture()
	inv := f.repo.add(f.acct.ID, base.Add(-8*24*time.Hour))

	v, err := f.svc.Get(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != StatusExpired {
		t.Errorf("expected expired, got %s", v.Status)
	}
	if v.ExpiresAt == nil || !v.ExpiresAt.Equal(base.Add(-24*time.Hour)) {
		t.Errorf("unexpected expiry %v", v.ExpiresAt)
	}

	if _, err := f.svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ForAccount(t *testing.T) {
	f := newFixture()
	f.repo.add(f.acct.ID, base.Add(-3*24*time.Hour), TagCancelled)
	newest := f.repo.add(f.acct.ID, base.Add(-time.Hour))

	v, err := f.svc.ForAccount(context.Background(), f.acct.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Invitation.ID != newest.ID || v.Status != StatusPending {
		t.Errorf("expected newest pending invitation, got %+v", v)
	}
}

func TestService_ForAccount_NoData(t *testing.T) {
	f := newFixture()

	v, err := f.svc.ForAccount(context.Background(), f.acct.ID)
	if err != nil || v.Status != StatusPending || v.Invitation != nil {
		t.Errorf("expected empty pending view, got %+v, %v", v, err)
	}

	f.repo.searchErr = ErrSearchUnsupported
	v, err = f.svc.ForAccount(context.Background(), f.acct.ID)
	if err != nil || v.Status != StatusPending {
		t.Errorf("unsupported search should read as pending, got %+v, %v", v, err)
	}

	f.repo.searchErr = errors.New("connection reset")
	if _, err := f.svc.ForAccount(context.Background(), f.acct.ID); err == nil {
		t.Error("other search errors should propagate")
	}
}

func TestService_ActivationLink(t *testing.T) {
	f := newFixture()
	inv := f.repo.add(f.acct.ID, base)
	f.repo.invitations[inv.ID].LinkedUserID = str("u-7")

	link, err := f.svc.ActivationLink(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.URL != "https://emr.example.org/setpassword/u-7" {
		t.Errorf("unexpected URL %s", link.URL)
	}
}

// -- EmailNotifier --

func TestEmailNotifier(t *testing.T) {
	sender := &notification.MockEmailSender{}
	n := NewEmailNotifier(notification.NewMailer(sender, nil), "https://emr.example.org", "General Hospital")
	n.now = func() time.Time { return base }

	first := "Grace"
	a := &account.Account{Username: "ghopper", FirstName: &first}
	if err := n.SendInvitation(context.Background(), &Invitation{Email: "grace@example.org", CreatedAt: at(base)}, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one email, got %d", len(calls))
	}
	if calls[0].To != "grace@example.org" || !strings.Contains(calls[0].Body, "Hello Grace") {
		t.Errorf("unexpected email %+v", calls[0])
	}
	if !strings.Contains(calls[0].Body, "https://emr.example.org/signin") {
		t.Errorf("expected sign-in link for unlinked invitation: %q", calls[0].Body)
	}
}
