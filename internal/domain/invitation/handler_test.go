package invitation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emradmin/internal/platform/validation"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validation.New()
	return NewHandler(f.svc), f, e
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_Resend(t *testing.T) {
	h, f, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"grace@example.org"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.acct.ID.String())

	if err := h.Resend(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("secret must not be serialised")
	}
}

func TestHandler_Resend_MissingEmail(t *testing.T) {
	h, f, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.acct.ID.String())

	if code := statusOf(t, h.Resend(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Resend_UnknownAccount(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.org"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	if code := statusOf(t, h.Resend(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_GetInvitation(t *testing.T) {
	h, f, e := newTestHandler()
	inv := f.repo.add(f.acct.ID, base.Add(-time.Hour), TagEmailBounced)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())

	if err := h.GetInvitation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v View
	json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Status != StatusBounced {
		t.Errorf("expected bounced, got %s", v.Status)
	}
}

func TestHandler_Cancel(t *testing.T) {
	h, f, e := newTestHandler()
	inv := f.repo.add(f.acct.ID, base)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())
	if err := h.Cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if code := statusOf(t, h.Cancel(c)); code != http.StatusNotFound {
		t.Errorf("expected 404 for missing invitation, got %d", code)
	}
}

func TestHandler_GetActivationLink(t *testing.T) {
	h, f, e := newTestHandler()
	inv := f.repo.add(f.acct.ID, base)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())
	if err := h.GetActivationLink(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var link ActivationLink
	json.Unmarshal(rec.Body.Bytes(), &link)
	if link.URL != "https://emr.example.org/signin" {
		t.Errorf("unexpected link %+v", link)
	}
}

func TestHandler_GetAccountInvitation(t *testing.T) {
	h, f, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.acct.ID.String())
	if err := h.GetAccountInvitation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v View
	json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Status != StatusPending || v.Invitation != nil {
		t.Errorf("expected empty pending view, got %+v", v)
	}
}

func TestHandler_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("bogus")
	if code := statusOf(t, h.GetInvitation(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}
