package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Service implements the login and logout boundaries around the token
// store and identity queries.
type Service struct {
	tokens     TokenStore
	identities IdentityStore
	cache      *Cache
}

// NewService constructs the session service.
func NewService(tokens TokenStore, identities IdentityStore, cache *Cache) (*Service, error) {
	if tokens == nil || identities == nil || cache == nil {
		return nil, errors.New("token store, identity store and cache are required")
	}
	return &Service{tokens: tokens, identities: identities, cache: cache}, nil
}

// Login verifies credentials and mints a fresh bearer token. Credential
// problems come back as *ValidationError with field messages; no token
// row is created on any failure path. A new login always mints a new
// token rather than refreshing an old one.
func (s *Service) Login(ctx context.Context, emailOrUsername, password string) (string, Identity, error) {
	v := &ValidationError{}
	login := strings.TrimSpace(strings.ToLower(emailOrUsername))

	var (
		user  User
		found bool
	)
	if login == "" {
		v.Add("email_or_username", "field email or username is required")
	} else {
		u, err := s.identities.FindByLogin(ctx, login)
		switch {
		case errors.Is(err, ErrNotFound):
			v.Add("email_or_username", "email or username doesn't exist")
		case err != nil:
			return "", Identity{}, err
		default:
			user = u
			found = true
		}
	}

	if password == "" {
		v.Add("password", "password field is required")
	} else if found && !VerifyPassword(user.PasswordHash, user.ID, password) {
		v.Add("password", "wrong password")
	}

	if !v.Empty() {
		return "", Identity{}, v
	}

	identity, err := resolveIdentity(ctx, s.identities, user)
	if err != nil {
		return "", Identity{}, err
	}
	token, err := s.tokens.Generate(ctx, user.ID, nil)
	if err != nil {
		return "", Identity{}, err
	}
	return EncodeToken(token.ID), identity, nil
}

// Logout revokes every token owned by the user and evicts the presented
// token's cache entry. Other instances' caches converge within the cache
// TTL.
func (s *Service) Logout(ctx context.Context, tokenID, userID uuid.UUID) error {
	if err := s.tokens.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	s.cache.Remove(tokenID)
	return nil
}
