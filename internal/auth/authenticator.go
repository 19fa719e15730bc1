package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Authenticator resolves an Authorization header to an identity bundle:
// header parsing, token decoding, cache lookup, storage fallback and
// permission/role resolution. Every failure path is an
// ErrUnauthorized-tagged error; it never panics past its boundary.
type Authenticator struct {
	tokens     TokenStore
	identities IdentityStore
	cache      *Cache
	ttl        time.Duration
	now        func() time.Time
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithTTL overrides the cache entry lifetime.
func WithTTL(ttl time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAuthenticator constructs an Authenticator around the given stores
// and cache.
func NewAuthenticator(tokens TokenStore, identities IdentityStore, cache *Cache, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		tokens:     tokens,
		identities: identities,
		cache:      cache,
		ttl:        cache.TTL(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ParseBearer extracts the token identifier from a raw Authorization
// header value. The header must be exactly two space-separated parts with
// a case-insensitive "bearer" scheme.
func ParseBearer(header string) (uuid.UUID, error) {
	if strings.TrimSpace(header) == "" {
		return uuid.Nil, unauthorized("token not found")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return uuid.Nil, unauthorized("invalid token")
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return uuid.Nil, unauthorized("invalid token type")
	}
	id, err := DecodeToken(parts[1])
	if err != nil {
		return uuid.Nil, unauthorized(err.Error())
	}
	return id, nil
}

// Authenticate runs the full resolution state machine for a raw
// Authorization header value. On a cache hit no storage access happens;
// on a miss the token store and identity queries are consulted and the
// cache repopulated with a fresh absolute expiry. Storage errors are
// deliberately surfaced as unauthorized rather than as server errors so
// a caller presenting a bad token learns nothing about internal state.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Identity, error) {
	id, err := ParseBearer(header)
	if err != nil {
		return Identity{}, err
	}

	a.cache.Sweep()
	if identity, _, ok := a.cache.Get(id); ok {
		return identity, nil
	}

	_, user, err := a.tokens.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, unauthorized("token not found")
		}
		return Identity{}, unauthorized(err.Error())
	}

	identity, err := resolveIdentity(ctx, a.identities, user)
	if err != nil {
		return Identity{}, unauthorized(err.Error())
	}

	return a.cache.Set(id, a.now().Add(a.ttl), identity), nil
}
