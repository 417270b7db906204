package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates users against a UserStore and issues tokens.
type Service struct {
	users  UserStore
	tokens *TokenIssuer
	logger zerolog.Logger
	cost   int

	compare   func(hash, password []byte) error
	dummyOnce sync.Once
	dummyHash []byte
}

func NewService(users UserStore, tokens *TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		logger: logger.With().Str("component", "auth").Logger(),
		cost:   bcrypt.DefaultCost,

		compare: bcrypt.CompareHashAndPassword,
	}
}

// Login returns a signed token when email and password match a stored user.
// Unknown users and wrong passwords both yield ErrInvalidCredentials, and
// both pay for a bcrypt comparison so timing does not reveal which emails
// are registered.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		_ = s.compare(s.unknownUserHash(), []byte(password))
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := s.compare([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug().Str("email", email).Msg("password mismatch")
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(u.Email, u.Role)
}

// unknownUserHash is a hash at the configured cost that no password
// matches.
func (s *Service) unknownUserHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no user has this password"), s.cost)
	})
	return s.dummyHash
}

func (s *Service) Validate(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}

// CreateUser stores a new user with a bcrypt hash of password.
func (s *Service) CreateUser(ctx context.Context, email, password, role string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if role == "" {
		role = RoleAdmin
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Email: email, PasswordHash: string(hash), Role: role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", role).Msg("user created")
	return u, nil
}
