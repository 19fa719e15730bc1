package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newLoginFixture(t *testing.T, password string) (*Service, *stubTokenStore, *stubIdentityStore, *Cache, User) {
	t.Helper()
	userID := uuid.New()
	user := User{
		ID:           userID,
		Name:         "root",
		Email:        "root@local",
		Username:     "root",
		PasswordHash: MakePassword(userID, password),
	}
	tokens := &stubTokenStore{}
	idents := &stubIdentityStore{
		user:  user,
		perms: []Permission{{ID: uuid.New(), Code: PermCreateUser, Name: "create user"}},
		roles: []Role{{ID: uuid.New(), Code: RoleAdmin, Name: "admin"}},
	}
	cache := NewCache(DefaultCacheTTL)
	svc, err := NewService(tokens, idents, cache)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, tokens, idents, cache, user
}

func TestLoginSuccessTokenAuthenticates(t *testing.T) {
	svc, tokens, idents, cache, user := newLoginFixture(t, "LetMe!nM4te")

	var minted Token
	tokens.genFn = func(_ context.Context, userID uuid.UUID, expiredAt *time.Time) (Token, error) {
		minted = Token{ID: uuid.New(), UserID: userID, ExpiredAt: expiredAt}
		return minted, nil
	}
	tokens.findFn = func(_ context.Context, id uuid.UUID) (Token, User, error) {
		if id != minted.ID {
			return Token{}, User{}, ErrNotFound
		}
		return minted, user, nil
	}

	tokenString, identity, err := svc.Login(context.Background(), "ROOT", "LetMe!nM4te")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if identity.User.ID != user.ID {
		t.Fatalf("unexpected identity user: %s", identity.User.ID)
	}
	if minted.ExpiredAt != nil {
		t.Fatal("login tokens carry no storage expiry")
	}

	// Presenting the fresh token immediately authenticates as the same user.
	a := NewAuthenticator(tokens, idents, cache)
	resolved, err := a.Authenticate(context.Background(), "Bearer "+tokenString)
	if err != nil {
		t.Fatalf("authenticate minted token: %v", err)
	}
	if resolved.User.ID != user.ID {
		t.Fatalf("token resolved to wrong user: %s", resolved.User.ID)
	}
}

func TestLoginWrongPasswordMintsNothing(t *testing.T) {
	svc, tokens, _, _, _ := newLoginFixture(t, "LetMe!nM4te")

	_, _, err := svc.Login(context.Background(), "root", "wrong")
	var v *ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := v.Fields["password"]; len(got) != 1 || got[0] != "wrong password" {
		t.Fatalf("unexpected password errors: %v", got)
	}
	if tokens.genCalls != 0 {
		t.Fatalf("expected no token row, got %d generate calls", tokens.genCalls)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, tokens, _, _, _ := newLoginFixture(t, "LetMe!nM4te")

	_, _, err := svc.Login(context.Background(), "nobody", "whatever")
	var v *ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := v.Fields["email_or_username"]; len(got) != 1 || got[0] != "email or username doesn't exist" {
		t.Fatalf("unexpected errors: %v", got)
	}
	if tokens.genCalls != 0 {
		t.Fatal("token minted for unknown user")
	}
}

func TestLoginMissingFields(t *testing.T) {
	svc, _, _, _, _ := newLoginFixture(t, "LetMe!nM4te")

	_, _, err := svc.Login(context.Background(), "  ", "")
	var v *ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"email_or_username", "password"} {
		if len(v.Fields[field]) == 0 {
			t.Fatalf("expected error for field %s: %v", field, v.Fields)
		}
	}
}

func TestLoginStorageErrorIsNotValidation(t *testing.T) {
	svc, _, idents, _, _ := newLoginFixture(t, "LetMe!nM4te")
	idents.userErr = errors.New("connection reset")

	_, _, err := svc.Login(context.Background(), "root", "LetMe!nM4te")
	var v *ValidationError
	if errors.As(err, &v) {
		t.Fatal("storage failure must not masquerade as validation")
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLogoutRevokesAndEvicts(t *testing.T) {
	svc, tokens, _, cache, user := newLoginFixture(t, "LetMe!nM4te")

	tokenID := uuid.New()
	cache.Set(tokenID, time.Now().Add(time.Hour), Identity{User: user})

	var deletedFor uuid.UUID
	tokens.deleteFn = func(_ context.Context, userID uuid.UUID) error {
		deletedFor = userID
		return nil
	}

	if err := svc.Logout(context.Background(), tokenID, user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if deletedFor != user.ID {
		t.Fatalf("expected revocation for %s, got %s", user.ID, deletedFor)
	}
	if _, _, ok := cache.Get(tokenID); ok {
		t.Fatal("cache entry survived logout")
	}
}

func TestLogoutStorageErrorKeepsCache(t *testing.T) {
	svc, tokens, _, cache, user := newLoginFixture(t, "LetMe!nM4te")

	tokenID := uuid.New()
	cache.Set(tokenID, time.Now().Add(time.Hour), Identity{User: user})
	tokens.deleteFn = func(context.Context, uuid.UUID) error {
		return errors.New("delete failed")
	}

	if err := svc.Logout(context.Background(), tokenID, user.ID); err == nil {
		t.Fatal("expected error")
	}
	if _, _, ok := cache.Get(tokenID); !ok {
		t.Fatal("cache evicted although revocation failed")
	}
}
