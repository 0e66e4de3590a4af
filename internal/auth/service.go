// Package auth provides account registration, credential checks and token
// issuance for both the HTTP API and the socket auth frame.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatbox-im/chatbox-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Identity is the result of a successful register, login or token check.
type Identity struct {
	UserID   string
	Username string
	Avatar   string
	Token    string
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns its identity
// with a fresh JWT token.
func (s *Service) Register(ctx context.Context, username, password, email string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return nil, ErrInvalidUsername
	}
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}

	existing, err := s.store.GetUserByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword, email)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.identityFor(user)
}

// Login validates credentials and returns the user's identity with a fresh
// JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (*Identity, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return nil, ErrInvalidCredentials
	}

	return s.identityFor(user)
}

// ResolveToken validates a JWT token and resolves the account it names.
func (s *Service) ResolveToken(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return &Identity{
		UserID:   user.UserID,
		Username: user.Username,
		Avatar:   user.AvatarURL,
		Token:    tokenString,
	}, nil
}

// ChangePassword verifies the old password and stores a hash of the new one.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return ErrInvalidPassword
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return ErrInvalidCredentials
	}
	if errPwd := ComparePassword(user.PasswordHash, oldPassword); errPwd != nil {
		return ErrInvalidCredentials
	}

	hashed, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, hashed); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *Service) identityFor(user *store.User) (*Identity, error) {
	token, err := GenerateToken(s.jwtConfig, user.UserID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Identity{
		UserID:   user.UserID,
		Username: user.Username,
		Avatar:   user.AvatarURL,
		Token:    token,
	}, nil
}
