package http

import (
	"net/http"
	"testing"
)

func TestLogin_InvalidCredentials(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/login", "c1", map[string]string{"email": "jane@co.com", "password": "nope"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "invalid credentials" {
		t.Fatalf("unexpected error message: %v", got)
	}
}

func TestLogin_RejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/login", "c1", map[string]string{"email": "not-an-email"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogin_ThenMe(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "c1", "jane@co.com")

	rec := s.do(http.MethodGet, "/me", "c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	user, ok := decodeBody(t, rec)["user"].(map[string]any)
	if !ok || user["email"] != "jane@co.com" {
		t.Fatalf("unexpected user: %v", rec.Body.String())
	}

	if rec := s.do(http.MethodGet, "/me", "c2", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("another client must not share the session, got %d", rec.Code)
	}
}

func TestMe_RequiresLoginWithRedirect(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/me", "c1", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["redirect"]; got != "/login" {
		t.Fatalf("expected redirect to /login, got %v", got)
	}
}

func TestLogout_ClearsSession(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "c1", "jane@co.com")

	if rec := s.do(http.MethodPost, "/auth/logout", "c1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/auth/logout", "c1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("second logout: expected 204, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/me", "c1", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestGetState_ReportsTimers(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "c1", "jane@co.com")

	rec := s.do(http.MethodGet, "/session", "c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	state, _ := body["state"].(map[string]any)
	if state["status"] != "active" || state["show_session_warning"] != false {
		t.Fatalf("unexpected state: %v", state)
	}
	if _, ok := body["next_warning_at"]; !ok {
		t.Fatalf("expected next_warning_at in %v", body)
	}
}

func TestClientID_IsMintedWhenMissing(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/session", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(clientIDHeader) == "" {
		t.Fatalf("expected minted client id header")
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatalf("expected client id cookie")
	}
}

func TestActivity_ValidatesKind(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "c1", "jane@co.com")

	if rec := s.do(http.MethodPost, "/session/activity", "c1", map[string]string{"kind": "resize"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/session/activity", "c1", map[string]string{"kind": "click"}); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestVisibility_RequiresFlag(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(http.MethodPost, "/session/visibility", "c1", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/session/visibility", "c1", map[string]bool{"visible": false}); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestTeardown_RemovesMachine(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "c1", "jane@co.com")
	m, ok := s.registry.Lookup("c1")
	if !ok {
		t.Fatalf("expected machine for c1")
	}

	if rec := s.do(http.MethodDelete, "/session", "c1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := s.registry.Lookup("c1"); ok {
		t.Fatalf("expected machine removed")
	}
	if m.Alive() {
		t.Fatalf("expected machine torn down")
	}
}

func TestAdmin_RequiresAdminFlag(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "c1", "jane@co.com")
	s.login(t, "c2", "boss.admin@co.com")

	if rec := s.do(http.MethodGet, "/admin/sessions", "c1", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/admin/sessions", "c2", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestAdmin_ForceSignOutEndsOtherClientSession(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "c1", "jane@co.com")
	s.login(t, "c2", "boss.admin@co.com")

	m, _ := s.registry.Lookup("c1")
	janeID := m.State().User.ID

	if rec := s.do(http.MethodPost, "/admin/users/"+janeID+"/signout", "c2", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/me", "c1", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected jane to be signed out, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/me", "c2", nil); rec.Code != http.StatusOK {
		t.Fatalf("admin session must survive, got %d", rec.Code)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServer(t)
	body := map[string]string{"email": "jane@co.com", "password": "nope"}

	for i := 0; i < 5; i++ {
		if rec := s.do(http.MethodPost, "/auth/login", "c1", body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	if rec := s.do(http.MethodPost, "/auth/login", "c1", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
