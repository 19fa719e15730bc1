package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	pageMinLimit = 10
	pageMaxLimit = 100
)

// Page carries normalized pagination parameters for listing endpoints.
type Page struct {
	Page   int
	Limit  int
	Search string
	Order  string
	Desc   bool
}

// Normalize clamps the page number and limit into their allowed ranges.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit < pageMinLimit:
		p.Limit = pageMinLimit
	case p.Limit > pageMaxLimit:
		p.Limit = pageMaxLimit
	}
	p.Search = strings.TrimSpace(p.Search)
	p.Order = strings.TrimSpace(strings.ToLower(p.Order))
	return p
}

// Offset returns the row offset for the normalized page.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// NewUser carries the fields required to create a user together with its
// initial assignment sets.
type NewUser struct {
	Name        string
	Email       string
	Username    string
	Password    string
	Permissions []uuid.UUID
	Roles       []uuid.UUID
}

// UserUpdate patches a user's general information.
type UserUpdate struct {
	Name     *string
	Email    *string
	Username *string
}

// GrantUpdate renames a permission or role.
type GrantUpdate struct {
	Code *string
	Name *string
}

// RBACStore persists the administrative directory: users, permissions,
// roles and their assignment tables.
type RBACStore interface {
	ListUsers(ctx context.Context, p Page) ([]User, int64, error)
	CreateUser(ctx context.Context, user User, permissionIDs, roleIDs []uuid.UUID) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SoftDeleteUser(ctx context.Context, id uuid.UUID) error
	// SetUserAssignments replaces the user's permission and role
	// assignment rows wholesale: full delete-then-reinsert, never a
	// partial patch.
	SetUserAssignments(ctx context.Context, userID uuid.UUID, permissionIDs, roleIDs []uuid.UUID) error

	ListPermissions(ctx context.Context, p Page) ([]Permission, int64, error)
	CreatePermission(ctx context.Context, code, name string) (Permission, error)
	GetPermission(ctx context.Context, id uuid.UUID) (Permission, error)
	UpdatePermission(ctx context.Context, id uuid.UUID, upd GrantUpdate) (Permission, error)
	DeletePermission(ctx context.Context, id uuid.UUID) error

	ListRoles(ctx context.Context, p Page) ([]Role, int64, error)
	CreateRole(ctx context.Context, code, name string) (Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, upd GrantUpdate) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	// SetRolePermissions replaces the role's permission_role rows, the
	// administrative bulk association outside the authentication hot path.
	SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
}

// RBACService validates and normalizes directory operations before
// delegating to the store.
type RBACService struct {
	store      RBACStore
	identities IdentityStore
}

// NewRBACService constructs the directory service.
func NewRBACService(store RBACStore, identities IdentityStore) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	if identities == nil {
		return nil, errors.New("identity store is required")
	}
	return &RBACService{store: store, identities: identities}, nil
}

func (s *RBACService) ListUsers(ctx context.Context, p Page) ([]User, int64, error) {
	return s.store.ListUsers(ctx, p.Normalize())
}

// CreateUser hashes the password against the freshly minted user id and
// inserts the user with its assignment rows in one transaction.
func (s *RBACService) CreateUser(ctx context.Context, req NewUser) (Identity, error) {
	v := &ValidationError{}
	name := strings.TrimSpace(strings.ToLower(req.Name))
	email := strings.TrimSpace(strings.ToLower(req.Email))
	username := strings.TrimSpace(strings.ToLower(req.Username))
	if name == "" {
		v.Add("name", "name field is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		v.Add("email", "valid email is required")
	}
	if username == "" {
		v.Add("username", "username field is required")
	}
	if strings.TrimSpace(req.Password) == "" {
		v.Add("password", "password field is required")
	}
	if !v.Empty() {
		return Identity{}, v
	}

	id := uuid.New()
	user := User{
		ID:           id,
		Name:         name,
		Email:        email,
		Username:     username,
		PasswordHash: MakePassword(id, req.Password),
	}
	created, err := s.store.CreateUser(ctx, user, dedupeIDs(req.Permissions), dedupeIDs(req.Roles))
	if err != nil {
		return Identity{}, err
	}
	return resolveIdentity(ctx, s.identities, created)
}

func (s *RBACService) GetUser(ctx context.Context, id uuid.UUID) (Identity, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	return resolveIdentity(ctx, s.identities, user)
}

func (s *RBACService) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (User, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(strings.ToLower(*upd.Name))
		if name == "" {
			return User{}, fmt.Errorf("%w: name field is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Username != nil {
		username := strings.TrimSpace(strings.ToLower(*upd.Username))
		if username == "" {
			return User{}, fmt.Errorf("%w: username field is required", ErrInvalidInput)
		}
		upd.Username = &username
	}
	return s.store.UpdateUser(ctx, id, upd)
}

func (s *RBACService) UpdateUserPassword(ctx context.Context, id uuid.UUID, password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password field is required", ErrInvalidInput)
	}
	return s.store.UpdateUserPassword(ctx, id, MakePassword(id, password))
}

func (s *RBACService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.store.SoftDeleteUser(ctx, id)
}

func (s *RBACService) SetUserAssignments(ctx context.Context, userID uuid.UUID, permissionIDs, roleIDs []uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.SetUserAssignments(ctx, userID, dedupeIDs(permissionIDs), dedupeIDs(roleIDs))
}

func (s *RBACService) ListPermissions(ctx context.Context, p Page) ([]Permission, int64, error) {
	return s.store.ListPermissions(ctx, p.Normalize())
}

func (s *RBACService) CreatePermission(ctx context.Context, code, name string) (Permission, error) {
	code, name, err := normalizeGrant(code, name)
	if err != nil {
		return Permission{}, err
	}
	return s.store.CreatePermission(ctx, code, name)
}

func (s *RBACService) GetPermission(ctx context.Context, id uuid.UUID) (Permission, error) {
	return s.store.GetPermission(ctx, id)
}

func (s *RBACService) UpdatePermission(ctx context.Context, id uuid.UUID, upd GrantUpdate) (Permission, error) {
	upd, err := normalizeGrantUpdate(upd)
	if err != nil {
		return Permission{}, err
	}
	return s.store.UpdatePermission(ctx, id, upd)
}

func (s *RBACService) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return s.store.DeletePermission(ctx, id)
}

func (s *RBACService) ListRoles(ctx context.Context, p Page) ([]Role, int64, error) {
	return s.store.ListRoles(ctx, p.Normalize())
}

func (s *RBACService) CreateRole(ctx context.Context, code, name string) (Role, error) {
	code, name, err := normalizeGrant(code, name)
	if err != nil {
		return Role{}, err
	}
	return s.store.CreateRole(ctx, code, name)
}

func (s *RBACService) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.store.GetRole(ctx, id)
}

func (s *RBACService) UpdateRole(ctx context.Context, id uuid.UUID, upd GrantUpdate) (Role, error) {
	upd, err := normalizeGrantUpdate(upd)
	if err != nil {
		return Role{}, err
	}
	return s.store.UpdateRole(ctx, id, upd)
}

func (s *RBACService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteRole(ctx, id)
}

func (s *RBACService) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if roleID == uuid.Nil {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.SetRolePermissions(ctx, roleID, dedupeIDs(permissionIDs))
}

// normalizeGrant uppercases permission/role codes and lowercases names.
func normalizeGrant(code, name string) (string, string, error) {
	code = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", "_"))
	name = strings.TrimSpace(strings.ToLower(name))
	if code == "" {
		return "", "", fmt.Errorf("%w: code field is required", ErrInvalidInput)
	}
	if name == "" {
		return "", "", fmt.Errorf("%w: name field is required", ErrInvalidInput)
	}
	return code, name, nil
}

func normalizeGrantUpdate(upd GrantUpdate) (GrantUpdate, error) {
	if upd.Code != nil {
		code := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(*upd.Code), " ", "_"))
		if code == "" {
			return GrantUpdate{}, fmt.Errorf("%w: code field is required", ErrInvalidInput)
		}
		upd.Code = &code
	}
	if upd.Name != nil {
		name := strings.TrimSpace(strings.ToLower(*upd.Name))
		if name == "" {
			return GrantUpdate{}, fmt.Errorf("%w: name field is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	return upd, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
