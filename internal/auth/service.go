package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAdminExists is returned when registering an existing admin username.
	ErrAdminExists = errors.New("admin already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidRole is returned when a role outside the privilege tiers is requested.
	ErrInvalidRole = errors.New("invalid role")
)

// Service provides admin authentication operations.
type Service struct {
	store     store.AdminStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(adminStore store.AdminStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     adminStore,
		jwtConfig: jwtConfig,
	}
}

// CreateAdmin registers a new admin account with a privileged role.
func (s *Service) CreateAdmin(ctx context.Context, username, password string, role perm.Role) (*store.AdminAccount, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return nil, ErrInvalidUsername
	}
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}
	if !perm.Privileged(role) {
		return nil, ErrInvalidRole
	}

	existing, err := s.store.GetAdminByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, ErrAdminExists
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acc, err := s.store.CreateAdmin(ctx, username, hashed, role)
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	return acc, nil
}

// Login validates credentials and returns a JWT token plus the account.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.AdminAccount, error) {
	acc, err := s.store.GetAdminByUsername(ctx, username)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(acc.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, acc.Username, acc.Role)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, acc, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
