package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"gatehouse.org/internal/auth"
)

func pgError(code string) *pgconn.PgError { return &pgconn.PgError{Code: code} }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func userRow(user auth.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "email", "username", "password_hash",
		"profile_photo_id", "email_verified_at", "created_at", "updated_at",
	}).AddRow(
		user.ID.String(), user.Name, user.Email, user.Username, user.PasswordHash,
		nil, nil, time.Now(), time.Now(),
	)
}

func TestGenerateInsertsTokenRow(t *testing.T) {
	store, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectExec("insert into tokens").
		WithArgs(sqlmock.AnyArg(), userID, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	token, err := store.Generate(context.Background(), userID, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token.UserID != userID {
		t.Fatalf("token owned by %s, want %s", token.UserID, userID)
	}
	if token.ID == uuid.Nil {
		t.Fatal("token id not minted")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into tokens").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnError(pgError(pgErrForeignKeyViolation))

	_, err := store.Generate(context.Background(), uuid.New(), nil)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindResolvesTokenAndUser(t *testing.T) {
	store, mock := newMockStore(t)
	tokenID := uuid.New()
	userID := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "expired_at",
		"u_id", "name", "email", "username", "password_hash",
		"profile_photo_id", "email_verified_at", "created_at", "updated_at",
	}).AddRow(
		tokenID.String(), userID.String(), nil,
		userID.String(), "root", "root@local", "root", "$argon2id$...",
		nil, nil, time.Now(), time.Now(),
	)
	mock.ExpectQuery("select t.id, t.user_id, t.expired_at").
		WithArgs(tokenID).
		WillReturnRows(rows)

	token, user, err := store.Find(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if token.ID != tokenID || token.UserID != userID || user.ID != userID {
		t.Fatalf("unexpected resolution: token=%v user=%v", token, user)
	}
	if token.ExpiredAt != nil {
		t.Fatal("expected open-ended token")
	}
}

func TestFindUnknownToken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select t.id, t.user_id, t.expired_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, _, err := store.Find(context.Background(), uuid.New())
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindStorageFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select t.id, t.user_id, t.expired_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, _, err := store.Find(context.Background(), uuid.New())
	if !errors.Is(err, auth.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestDeleteByUserRevokesAll(t *testing.T) {
	store, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectExec("delete from tokens where user_id").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := store.DeleteByUser(context.Background(), userID); err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByLogin(t *testing.T) {
	store, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectQuery("select id, name, email, username, password_hash").
		WithArgs("root@local").
		WillReturnRows(userRow(auth.User{ID: userID, Name: "root", Email: "root@local", Username: "root"}))

	user, err := store.FindByLogin(context.Background(), "root@local")
	if err != nil {
		t.Fatalf("find by login: %v", err)
	}
	if user.ID != userID {
		t.Fatalf("resolved wrong user: %s", user.ID)
	}
}

func TestMarkEmailVerifiedUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkEmailVerified(context.Background(), uuid.New(), time.Now())
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// Permission resolution reads direct assignments only. A role held by
// the user must never pull permission_role grants into the set.
func TestPermissionsForIsDirectOnly(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherFunc(
		func(_, actualSQL string) error {
			if strings.Contains(actualSQL, "permission_role") || strings.Contains(actualSQL, "role_user") {
				return fmt.Errorf("permission lookup must not read role grants: %s", actualSQL)
			}
			if !strings.Contains(actualSQL, "join permission_user pu") {
				return fmt.Errorf("expected permission_user join, got: %s", actualSQL)
			}
			return nil
		})))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := NewWithDB(db)
	userID := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "code", "name"}).
		AddRow(uuid.NewString(), "CREATE_USER", "create user").
		AddRow(uuid.NewString(), "READ_USER", "read user")
	mock.ExpectQuery("").
		WithArgs(userID).
		WillReturnRows(rows)

	perms, err := store.PermissionsFor(context.Background(), userID)
	if err != nil {
		t.Fatalf("permissions for: %v", err)
	}
	if len(perms) != 2 || perms[0].Code != "CREATE_USER" {
		t.Fatalf("unexpected permissions: %v", perms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
