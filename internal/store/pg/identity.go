package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gatehouse.org/internal/auth"
)

const userColumns = `id, name, email, username, password_hash,
	profile_photo_id, email_verified_at, created_at, updated_at`

func scanUser(row *sql.Row) (auth.User, error) {
	var user auth.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.Username, &user.PasswordHash,
		&user.ProfilePhotoID, &user.EmailVerifiedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	return user, nil
}

func (s *Store) FindUser(ctx context.Context, id uuid.UUID) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, fmt.Errorf("%w: database connection unavailable", auth.ErrStorage)
	}
	return scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1 and deleted_at is null
	`, id))
}

// FindByLogin matches the value against email first, then username.
func (s *Store) FindByLogin(ctx context.Context, login string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, fmt.Errorf("%w: database connection unavailable", auth.ErrStorage)
	}
	return scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where (email = $1 or username = $1) and deleted_at is null
	`, login))
}

// PermissionsFor returns the user's directly assigned permissions.
// Role membership never widens this set; permission_role rows are an
// administrative association only.
func (s *Store) PermissionsFor(ctx context.Context, userID uuid.UUID) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%w: database connection unavailable", auth.ErrStorage)
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.code, p.name
		from permissions p
		join permission_user pu on pu.permission_id = p.id
		where pu.user_id = $1 and p.deleted_at is null
		order by p.code
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", auth.ErrStorage, err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	return perms, nil
}

func (s *Store) RolesFor(ctx context.Context, userID uuid.UUID) ([]auth.Role, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%w: database connection unavailable", auth.ErrStorage)
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.code, r.name
		from roles r
		join role_user ru on ru.role_id = r.id
		where ru.user_id = $1 and r.deleted_at is null
		order by r.code
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Code, &r.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", auth.ErrStorage, err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	return roles, nil
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID uuid.UUID, at time.Time) error {
	if s.db == nil {
		return fmt.Errorf("%w: database connection unavailable", auth.ErrStorage)
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set email_verified_at = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, userID, at)
	if err != nil {
		return fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
