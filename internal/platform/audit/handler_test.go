package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type mockLister struct {
	subject string
	limit   int
	events  []*Event
	err     error
}

func (m *mockLister) ListBySubject(_ context.Context, subject string, limit int) ([]*Event, error) {
	m.subject, m.limit = subject, limit
	return m.events, m.err
}

func listRequest(h *Handler, id, query string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+query, nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return rec, h.ListForAccount(c)
}

func TestHandler_ListForAccount(t *testing.T) {
	id := uuid.New()
	lister := &mockLister{events: []*Event{{ID: uuid.New(), Action: ActionUpdate, Description: "Account deactivated"}}}

	rec, err := listRequest(NewHandler(lister), id.String(), "?limit=5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lister.subject != "Practitioner/"+id.String() || lister.limit != 5 {
		t.Errorf("unexpected query subject=%q limit=%d", lister.subject, lister.limit)
	}
	var got []Event
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Description != "Account deactivated" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_ListForAccount_Empty(t *testing.T) {
	rec, err := listRequest(NewHandler(&mockLister{}), uuid.NewString(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "[]\n" {
		t.Errorf("expected empty list, got %q", rec.Body.String())
	}
}

func TestHandler_ListForAccount_Errors(t *testing.T) {
	h := NewHandler(&mockLister{err: errors.New("db down")})

	_, err := listRequest(h, "not-a-uuid", "")
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
	_, err = listRequest(h, uuid.NewString(), "")
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %v", err)
	}
}
