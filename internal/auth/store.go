package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenStore persists bearer tokens.
type TokenStore interface {
	// Generate creates and persists a new random-identifier token owned by
	// the user, with an optional storage-layer expiry.
	Generate(ctx context.Context, userID uuid.UUID, expiredAt *time.Time) (Token, error)
	// Find returns the token joined to its owning user. Expired tokens and
	// soft-deleted owners are treated as absent (ErrNotFound).
	Find(ctx context.Context, id uuid.UUID) (Token, User, error)
	// DeleteByUser revokes every token owned by the user.
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

// IdentityStore resolves users and their permission and role sets.
type IdentityStore interface {
	FindUser(ctx context.Context, id uuid.UUID) (User, error)
	// FindByLogin looks a user up by email or username (already
	// case-normalized by the caller). Soft-deleted users are absent.
	FindByLogin(ctx context.Context, emailOrUsername string) (User, error)
	// PermissionsFor returns the user's permission set; empty, not an
	// error, when the user has no assignments.
	PermissionsFor(ctx context.Context, userID uuid.UUID) ([]Permission, error)
	// RolesFor returns the user's role set; empty when unassigned.
	RolesFor(ctx context.Context, userID uuid.UUID) ([]Role, error)
}

// VerificationStore stamps a user's email as verified.
type VerificationStore interface {
	MarkEmailVerified(ctx context.Context, userID uuid.UUID, at time.Time) error
}

func resolveIdentity(ctx context.Context, identities IdentityStore, user User) (Identity, error) {
	permissions, err := identities.PermissionsFor(ctx, user.ID)
	if err != nil {
		return Identity{}, err
	}
	roles, err := identities.RolesFor(ctx, user.ID)
	if err != nil {
		return Identity{}, err
	}
	if permissions == nil {
		permissions = []Permission{}
	}
	if roles == nil {
		roles = []Role{}
	}
	return Identity{User: user, Permissions: permissions, Roles: roles}, nil
}
