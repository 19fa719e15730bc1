package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can hold permissions and roles. A user with a
// non-nil DeletedAt is invisible to every lookup used for authentication
// and listing.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	PasswordHash    string     `json:"-"`
	ProfilePhotoID  *uuid.UUID `json:"profile_photo_id,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"-"`
}

// Permission is a single grantable capability, e.g. CREATE_USER.
// Codes are uppercase with underscores, names lowercase.
type Permission struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

// Role is a named label assigned to users in parallel with permissions.
// Roles do not embed permissions on the authentication hot path.
type Role struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

// Token is a persisted bearer credential. The identifier itself is the
// secret material; ExpiredAt nil means the token never expires at the
// storage layer.
type Token struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`
}

// Identity is the bundle produced by successful authentication: the user
// plus that user's resolved permission and role sets.
type Identity struct {
	User        User         `json:"user"`
	Permissions []Permission `json:"permissions"`
	Roles       []Role       `json:"roles"`
}

// HasPermission reports whether the identity holds the permission code.
func (i Identity) HasPermission(code string) bool {
	for _, p := range i.Permissions {
		if p.Code == code {
			return true
		}
	}
	return false
}

// HasRole reports whether the identity holds the role code.
func (i Identity) HasRole(code string) bool {
	for _, r := range i.Roles {
		if r.Code == code {
			return true
		}
	}
	return false
}
