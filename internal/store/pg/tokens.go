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

// Generate inserts a fresh token row whose id doubles as the secret.
func (s *Store) Generate(ctx context.Context, userID uuid.UUID, expiredAt *time.Time) (auth.Token, error) {
	if s.db == nil {
		return auth.Token{}, fmt.Errorf("%w: database connection unavailable", auth.ErrStorage)
	}
	token := auth.Token{ID: uuid.New(), UserID: userID, ExpiredAt: expiredAt}
	_, err := s.db.ExecContext(ctx, `
		insert into tokens (id, user_id, expired_at)
		values ($1, $2, $3)
	`, token.ID, token.UserID, token.ExpiredAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.Token{}, auth.ErrNotFound
		}
		return auth.Token{}, fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	return token, nil
}

// Find resolves a token id to its row and owning user. Rows with a past
// expired_at and users with a deleted_at stamp are invisible here, so
// revocation and deletion take effect on the next storage read.
func (s *Store) Find(ctx context.Context, id uuid.UUID) (auth.Token, auth.User, error) {
	if s.db == nil {
		return auth.Token{}, auth.User{}, fmt.Errorf("%w: database connection unavailable", auth.ErrStorage)
	}
	var (
		token auth.Token
		user  auth.User
	)
	err := s.db.QueryRowContext(ctx, `
		select t.id, t.user_id, t.expired_at,
		       u.id, u.name, u.email, u.username, u.password_hash,
		       u.profile_photo_id, u.email_verified_at,
		       u.created_at, u.updated_at
		from tokens t
		join users u on u.id = t.user_id
		where t.id = $1
		  and (t.expired_at is null or t.expired_at > now())
		  and u.deleted_at is null
	`, id).Scan(
		&token.ID, &token.UserID, &token.ExpiredAt,
		&user.ID, &user.Name, &user.Email, &user.Username, &user.PasswordHash,
		&user.ProfilePhotoID, &user.EmailVerifiedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Token{}, auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Token{}, auth.User{}, fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	return token, user, nil
}

// DeleteByUser revokes every token owned by the user.
func (s *Store) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	if s.db == nil {
		return fmt.Errorf("%w: database connection unavailable", auth.ErrStorage)
	}
	if _, err := s.db.ExecContext(ctx, `delete from tokens where user_id = $1`, userID); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrStorage, err)
	}
	return nil
}
