package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"gatehouse.org/internal/auth"
)

func identityWith(perms ...string) auth.Identity {
	id := auth.Identity{User: auth.User{ID: uuid.New(), Username: "tester"}}
	for _, p := range perms {
		id.Permissions = append(id.Permissions, auth.Permission{ID: uuid.New(), Code: p})
	}
	return id
}

func TestEnsurePermissionRejectsAnonymous(t *testing.T) {
	api := &API{}
	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	rr := httptest.NewRecorder()

	if api.ensurePermission(rr, req, auth.PermReadUser) {
		t.Fatal("expected rejection without identity")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestEnsurePermissionRejectsMissingGrant(t *testing.T) {
	api := &API{}
	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), identityWith(auth.PermReadRole)))
	rr := httptest.NewRecorder()

	if api.ensurePermission(rr, req, auth.PermReadUser) {
		t.Fatal("expected rejection without grant")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestEnsurePermissionAllowsHolder(t *testing.T) {
	api := &API{}
	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), identityWith(auth.PermReadUser)))
	rr := httptest.NewRecorder()

	if !api.ensurePermission(rr, req, auth.PermReadUser) {
		t.Fatal("expected permission holder to pass")
	}
}

func TestWithAuthSkipsPublicPaths(t *testing.T) {
	store := newMemStore()
	api := &API{authn: auth.NewAuthenticator(store, store, auth.NewCache(auth.DefaultCacheTTL))}

	var called bool
	handler := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("public path should not require a token")
	}

	// Subpaths of public prefixes still require a session.
	called = false
	rr := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/verify-email/request", nil)
	handler.ServeHTTP(rr, req)
	if called {
		t.Fatal("verify-email/request must require a token")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	store := newMemStore()
	api := &API{authn: auth.NewAuthenticator(store, store, auth.NewCache(auth.DefaultCacheTTL))}

	handler := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/users", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthStashesIdentityAndToken(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.users[userID] = auth.User{ID: userID, Username: "tester", Email: "t@local"}
	token, err := store.Generate(context.Background(), userID, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	api := &API{authn: auth.NewAuthenticator(store, store, auth.NewCache(auth.DefaultCacheTTL))}

	var gotIdentity auth.Identity
	var gotTokenID uuid.UUID
	handler := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = auth.IdentityFromContext(r.Context())
		gotTokenID, _ = auth.TokenIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set(authHeader, "Bearer "+auth.EncodeToken(token.ID))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if gotIdentity.User.ID != userID {
		t.Fatalf("unexpected identity: %+v", gotIdentity)
	}
	if gotTokenID != token.ID {
		t.Fatalf("unexpected token id: %s", gotTokenID)
	}
}
