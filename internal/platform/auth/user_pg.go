package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/patientcare/patient-service/internal/platform/db"
)

const userEmailConstraint = "auth_user_email_key"

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type userStorePG struct {
	db querier
}

func NewUserStorePG(q querier) UserStore {
	return &userStorePG{db: q}
}

func (s *userStorePG) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password, role, created_at
		FROM auth_user WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *userStorePG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := s.db.QueryRow(ctx, `
		INSERT INTO auth_user (id, email, password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.CreatedAt)
	if db.IsUniqueViolation(err, userEmailConstraint) {
		return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
