package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patientcare/patient-service/internal/platform/db"
)

const userSQLiteSchema = `CREATE TABLE IF NOT EXISTS auth_user (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL UNIQUE,
    password   TEXT NOT NULL,
    role       TEXT NOT NULL DEFAULT 'ADMIN',
    created_at TEXT NOT NULL
)`

type userStoreSQLite struct {
	db *sql.DB
}

// NewUserStoreSQLite returns an embedded user store, creating its table if
// needed.
func NewUserStoreSQLite(ctx context.Context, conn *sql.DB) (UserStore, error) {
	if _, err := conn.ExecContext(ctx, userSQLiteSchema); err != nil {
		return nil, fmt.Errorf("create auth_user table: %w", err)
	}
	return &userStoreSQLite{db: conn}, nil
}

func (s *userStoreSQLite) GetByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u             User
		id, createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password, role, created_at
		FROM auth_user WHERE email = ?`, email,
	).Scan(&id, &u.Email, &u.PasswordHash, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", id, err)
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return &u, nil
}

func (s *userStoreSQLite) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_user (id, email, password, role, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID.String(), u.Email, u.PasswordHash, u.Role, u.CreatedAt.Format(time.RFC3339Nano),
	)
	if db.IsSQLiteUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
