package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tempora-hq/tempora/internal/auth"
	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
	_ "github.com/tempora-hq/tempora/testing"
)

type stubRepo struct {
	account *auth.Account
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	if s.account == nil || s.account.Username != username {
		return nil, httpx.ErrNotFound
	}
	return s.account, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.Account, error) {
	if s.account == nil || s.account.ID != id {
		return nil, httpx.ErrNotFound
	}
	return s.account, nil
}

func newService(t *testing.T, account *auth.Account) *auth.Service {
	t.Helper()
	return auth.NewService(&stubRepo{account: account}, auth.ServiceConfig{
		Secret:     "test-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
}

func testAccount(t *testing.T, password string) *auth.Account {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.Account{
		ID:           7,
		Username:     "alice",
		PasswordHash: string(hashed),
		Role:         authz.RoleManager,
		IsActive:     true,
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc := newService(t, testAccount(t, "correcthorse"))
	handler := auth.NewHandler(nil, svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"correcthorse"}`))
	res := httptest.NewRecorder()

	mux := newMux(handler)
	mux.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	require.Contains(t, body, `"access_token"`)
	require.Contains(t, body, `"refresh_token"`)
	require.Contains(t, body, `"role":"manager"`)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	svc := newService(t, testAccount(t, "correcthorse"))
	handler := auth.NewHandler(nil, svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"wrong"}`))
	res := httptest.NewRecorder()

	newMux(handler).ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	account := testAccount(t, "correcthorse")
	account.IsActive = false
	handler := auth.NewHandler(nil, newService(t, account))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"correcthorse"}`))
	res := httptest.NewRecorder()

	newMux(handler).ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuthenticatorResolvesActor(t *testing.T) {
	account := testAccount(t, "correcthorse")
	svc := newService(t, account)
	pair, err := svc.IssueTokens(account)
	require.NoError(t, err)

	var got authz.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		require.True(t, ok)
		got = actor
	})

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	res := httptest.NewRecorder()
	svc.Authenticator(next).ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, account.ID, got.ID)
	require.Equal(t, authz.RoleManager, got.Role)
}

func TestAuthenticatorRejectsRefreshTokenAsAccess(t *testing.T) {
	account := testAccount(t, "correcthorse")
	svc := newService(t, account)
	pair, err := svc.IssueTokens(account)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	res := httptest.NewRecorder()
	svc.Authenticator(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("request must not reach the handler")
	})).ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRefreshRotatesAccessToken(t *testing.T) {
	account := testAccount(t, "correcthorse")
	svc := newService(t, account)
	pair, err := svc.IssueTokens(account)
	require.NoError(t, err)

	access, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	actor, err := svc.ActorFromToken(access)
	require.NoError(t, err)
	require.Equal(t, account.ID, actor.ID)

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func newMux(handler *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}
