package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gatehouse.org/internal/auth"
	"gatehouse.org/internal/ids"
)

var userOrderColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"username":   "username",
	"created_at": "created_at",
}

var grantOrderColumns = map[string]string{
	"code":       "code",
	"name":       "name",
	"created_at": "created_at",
}

// orderClause maps the requested column through a whitelist. Unknown
// columns fall back to the default rather than erroring.
func orderClause(p auth.Page, allowed map[string]string, def string) string {
	col, ok := allowed[p.Order]
	if !ok {
		col = def
	}
	dir := "asc"
	if p.Desc {
		dir = "desc"
	}
	return fmt.Sprintf("order by %s %s", col, dir)
}

func (s *Store) ListUsers(ctx context.Context, p auth.Page) ([]auth.User, int64, error) {
	if s.db == nil {
		return nil, 0, errors.New("database connection unavailable")
	}

	where := "where deleted_at is null"
	args := []any{}
	if p.Search != "" {
		where += " and (name ilike $1 or email ilike $1 or username ilike $1)"
		args = append(args, "%"+p.Search+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from users `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		select %s
		from users
		%s
		%s
		limit $%d offset $%d
	`, userColumns, where, orderClause(p, userOrderColumns, "created_at"), len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		var user auth.User
		if err := rows.Scan(
			&user.ID, &user.Name, &user.Email, &user.Username, &user.PasswordHash,
			&user.ProfilePhotoID, &user.EmailVerifiedAt,
			&user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// CreateUser inserts the user together with its initial assignment rows
// in one transaction.
func (s *Store) CreateUser(ctx context.Context, user auth.User, permissionIDs, roleIDs []uuid.UUID) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into users (id, name, email, username, password_hash)
		values ($1, $2, $3, $4, $5)
		returning `+userColumns+`
	`, user.ID, user.Name, user.Email, user.Username, user.PasswordHash)
	var created auth.User
	if err := row.Scan(
		&created.ID, &created.Name, &created.Email, &created.Username, &created.PasswordHash,
		&created.ProfilePhotoID, &created.EmailVerifiedAt,
		&created.CreatedAt, &created.UpdatedAt,
	); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, auth.ErrConflict
		}
		return auth.User{}, err
	}

	if err := insertAssignments(ctx, tx, "permission_user", "permission_id", created.ID, permissionIDs); err != nil {
		return auth.User{}, err
	}
	if err := insertAssignments(ctx, tx, "role_user", "role_id", created.ID, roleIDs); err != nil {
		return auth.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return created, nil
}

func insertAssignments(ctx context.Context, tx *sql.Tx, table, column string, userID uuid.UUID, grantIDs []uuid.UUID) error {
	for _, grantID := range grantIDs {
		query := fmt.Sprintf(`insert into %s (id, %s, user_id) values ($1, $2, $3)`, table, column)
		if _, err := tx.ExecContext(ctx, query, ids.New(), grantID, userID); err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return auth.ErrConflict
				case pgErrForeignKeyViolation:
					return fmt.Errorf("%w: %s %s", auth.ErrNotFound, column, grantID)
				}
			}
			return err
		}
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (auth.User, error) {
	return s.FindUser(ctx, id)
}

func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, upd auth.UserUpdate) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Username != nil {
		sets = append(sets, fmt.Sprintf("username = $%d", idx))
		args = append(args, *upd.Username)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d and deleted_at is null`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.User{}, auth.ErrConflict
			}
			return auth.User{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return auth.User{}, err
		}
		if aff == 0 {
			return auth.User{}, auth.ErrNotFound
		}
	}
	return s.FindUser(ctx, id)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, id, passwordHash)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SoftDeleteUser stamps deleted_at and revokes the user's tokens in the
// same transaction. Assignment rows stay behind the soft-delete filter.
func (s *Store) SoftDeleteUser(ctx context.Context, id uuid.UUID) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update users
		set deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from tokens where user_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetUserAssignments replaces both assignment sets wholesale.
func (s *Store) SetUserAssignments(ctx context.Context, userID uuid.UUID, permissionIDs, roleIDs []uuid.UUID) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from users where id = $1 and deleted_at is null`, userID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from permission_user where user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_user where user_id = $1`, userID); err != nil {
		return err
	}
	if err := insertAssignments(ctx, tx, "permission_user", "permission_id", userID, permissionIDs); err != nil {
		return err
	}
	if err := insertAssignments(ctx, tx, "role_user", "role_id", userID, roleIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListPermissions(ctx context.Context, p auth.Page) ([]auth.Permission, int64, error) {
	items, total, err := s.listGrants(ctx, "permissions", p)
	if err != nil {
		return nil, 0, err
	}
	perms := make([]auth.Permission, len(items))
	for i, g := range items {
		perms[i] = auth.Permission(g)
	}
	return perms, total, nil
}

func (s *Store) CreatePermission(ctx context.Context, code, name string) (auth.Permission, error) {
	g, err := s.createGrant(ctx, "permissions", code, name)
	return auth.Permission(g), err
}

func (s *Store) GetPermission(ctx context.Context, id uuid.UUID) (auth.Permission, error) {
	g, err := s.getGrant(ctx, "permissions", id)
	return auth.Permission(g), err
}

func (s *Store) UpdatePermission(ctx context.Context, id uuid.UUID, upd auth.GrantUpdate) (auth.Permission, error) {
	g, err := s.updateGrant(ctx, "permissions", id, upd)
	return auth.Permission(g), err
}

func (s *Store) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return s.deleteGrant(ctx, "permissions", id)
}

func (s *Store) ListRoles(ctx context.Context, p auth.Page) ([]auth.Role, int64, error) {
	items, total, err := s.listGrants(ctx, "roles", p)
	if err != nil {
		return nil, 0, err
	}
	roles := make([]auth.Role, len(items))
	for i, g := range items {
		roles[i] = auth.Role(g)
	}
	return roles, total, nil
}

func (s *Store) CreateRole(ctx context.Context, code, name string) (auth.Role, error) {
	g, err := s.createGrant(ctx, "roles", code, name)
	return auth.Role(g), err
}

func (s *Store) GetRole(ctx context.Context, id uuid.UUID) (auth.Role, error) {
	g, err := s.getGrant(ctx, "roles", id)
	return auth.Role(g), err
}

func (s *Store) UpdateRole(ctx context.Context, id uuid.UUID, upd auth.GrantUpdate) (auth.Role, error) {
	g, err := s.updateGrant(ctx, "roles", id, upd)
	return auth.Role(g), err
}

func (s *Store) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return s.deleteGrant(ctx, "roles", id)
}

// SetRolePermissions replaces the role's permission_role rows wholesale.
func (s *Store) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1 and deleted_at is null`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from permission_role where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into permission_role (id, permission_id, role_id)
			values ($1, $2, $3)
		`, ids.New(), permID, roleID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: permission %s", auth.ErrNotFound, permID)
			}
			return err
		}
	}
	return tx.Commit()
}

// grant is the shared shape of permissions and roles rows.
type grant struct {
	ID   uuid.UUID
	Code string
	Name string
}

func (s *Store) listGrants(ctx context.Context, table string, p auth.Page) ([]grant, int64, error) {
	if s.db == nil {
		return nil, 0, errors.New("database connection unavailable")
	}

	where := "where deleted_at is null"
	args := []any{}
	if p.Search != "" {
		where += " and (code ilike $1 or name ilike $1)"
		args = append(args, "%"+p.Search+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`select count(*) from %s %s`, table, where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		select id, code, name
		from %s
		%s
		%s
		limit $%d offset $%d
	`, table, where, orderClause(p, grantOrderColumns, "code"), len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var grants []grant
	for rows.Next() {
		var g grant
		if err := rows.Scan(&g.ID, &g.Code, &g.Name); err != nil {
			return nil, 0, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return grants, total, nil
}

func (s *Store) createGrant(ctx context.Context, table, code, name string) (grant, error) {
	if s.db == nil {
		return grant{}, errors.New("database connection unavailable")
	}
	var g grant
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		insert into %s (id, code, name)
		values ($1, $2, $3)
		returning id, code, name
	`, table), uuid.New(), code, name)
	if err := row.Scan(&g.ID, &g.Code, &g.Name); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return grant{}, auth.ErrConflict
		}
		return grant{}, err
	}
	return g, nil
}

func (s *Store) getGrant(ctx context.Context, table string, id uuid.UUID) (grant, error) {
	if s.db == nil {
		return grant{}, errors.New("database connection unavailable")
	}
	var g grant
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		select id, code, name
		from %s
		where id = $1 and deleted_at is null
	`, table), id).Scan(&g.ID, &g.Code, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return grant{}, auth.ErrNotFound
	}
	if err != nil {
		return grant{}, err
	}
	return g, nil
}

func (s *Store) updateGrant(ctx context.Context, table string, id uuid.UUID, upd auth.GrantUpdate) (grant, error) {
	if s.db == nil {
		return grant{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Code != nil {
		sets = append(sets, fmt.Sprintf("code = $%d", idx))
		args = append(args, *upd.Code)
		idx++
	}
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update %s set %s where id = $%d and deleted_at is null`, table, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return grant{}, auth.ErrConflict
			}
			return grant{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return grant{}, err
		}
		if aff == 0 {
			return grant{}, auth.ErrNotFound
		}
	}
	return s.getGrant(ctx, table, id)
}

func (s *Store) deleteGrant(ctx context.Context, table string, id uuid.UUID) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		update %s
		set deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null
	`, table), id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
