package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"loan-dash/internal/domain"
	"loan-dash/internal/identity"
	"loan-dash/internal/service"
	"loan-dash/internal/session"
)

type mockAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.IdentityAccount
}

func (m *mockAccountRepo) Create(_ context.Context, account domain.IdentityAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Email] = account
	return nil
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (domain.IdentityAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[email]
	if !ok {
		return domain.IdentityAccount{}, pgx.ErrNoRows
	}
	return account, nil
}

// mockProfileStore sirve como loader de la máquina y como repo del endpoint bearer.
type mockProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
}

func (m *mockProfileStore) LoadProfile(_ context.Context, identityID, email string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[identityID]; ok {
		return p, nil
	}
	role := domain.RoleUser
	if strings.Contains(email, "admin") {
		role = domain.RoleAdmin
	}
	p := domain.Profile{ID: identityID, Name: "Test", Email: email, Role: "Loan Officer", InternalRole: role}
	m.profiles[identityID] = p
	return p, nil
}

func (m *mockProfileStore) GetByID(_ context.Context, id string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return domain.Profile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockProfileStore) Upsert(_ context.Context, profile domain.Profile) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.ID] = profile
	return profile, nil
}

type fixedTimeout int

func (f fixedTimeout) AutoLogoutTimeoutMinutes(context.Context) int {
	return int(f)
}

type testServer struct {
	router   *gin.Engine
	registry *session.Registry
	identity *identity.Service
	tokens   *identity.TokenIssuer
	profiles *mockProfileStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	tokens := identity.NewTokenIssuer("secret", 15*time.Minute, time.Hour, identity.NewMemoryRefreshTokenStore())
	identitySvc := identity.NewService(logger, &mockAccountRepo{accounts: map[string]domain.IdentityAccount{}}, tokens, nil)
	for _, email := range []string{"jane@co.com", "boss.admin@co.com"} {
		if _, err := identitySvc.Register(context.Background(), email, "password123"); err != nil {
			t.Fatalf("register %s: %v", email, err)
		}
	}
	profiles := &mockProfileStore{profiles: map[string]domain.Profile{}}
	limiter := service.NewMemoryLoginLimiter(time.Minute, 5)

	registry := session.NewRegistry(logger, func() *session.Machine {
		return session.NewMachine(logger, identity.NewClient(identitySvc), profiles, fixedTimeout(30))
	}, time.Hour, nil, nil)
	t.Cleanup(registry.Close)

	router := NewRouter(
		logger,
		registry,
		tokens,
		nil,
		NewSessionHandler(logger, registry, limiter),
		NewProfileHandler(logger, profiles),
		NewAdminHandler(logger, registry, identitySvc),
		NewAccountHandler(logger, identitySvc, tokens, limiter),
	)
	return &testServer{
		router:   router,
		registry: registry,
		identity: identitySvc,
		tokens:   tokens,
		profiles: profiles,
	}
}

func (s *testServer) do(method, path, clientID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set(clientIDHeader, clientID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doBearer(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, clientID, email string) {
	t.Helper()
	rec := s.do(http.MethodPost, "/auth/login", clientID, map[string]string{"email": email, "password": "password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, rec.Code, rec.Body.String())
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}
