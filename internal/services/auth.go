package services

import (
	"context"
	"errors"
	"time"

	"github.com/vsmm-world/userapi/internal/apperr"
	"github.com/vsmm-world/userapi/internal/audit"
	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/internal/store"
	"github.com/vsmm-world/userapi/types"
	"go.uber.org/zap"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgAccountLocked      = "Account is temporarily locked due to multiple failed login attempts. Please try again later."
	msgAccountInactive    = "Account is inactive. Please contact administrator."
	msgAdminSignup        = "Registration with the admin role is not allowed"
)

// TokenIssuer signs bearer tokens for a user id.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     types.Role
}

type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

// AuthService implements registration, login and current-user lookup.
type AuthService struct {
	repo             UserRepository
	hasher           PasswordHasher
	tokens           TokenIssuer
	security         *audit.SecurityLogger
	log              *zap.Logger
	policy           auth.LockoutPolicy
	allowAdminSignup bool
	now              func() time.Time
}

type AuthOption func(*AuthService)

func WithLockoutPolicy(p auth.LockoutPolicy) AuthOption {
	return func(s *AuthService) { s.policy = p }
}

// WithAdminSignup lets anonymous registration request the admin role.
func WithAdminSignup(allow bool) AuthOption {
	return func(s *AuthService) { s.allowAdminSignup = allow }
}

func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(repo UserRepository, hasher PasswordHasher, tokens TokenIssuer, security *audit.SecurityLogger, log *zap.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		security: security,
		log:      log.Named("auth"),
		policy:   auth.DefaultLockoutPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, req audit.Request, in RegisterInput) (AuthResult, error) {
	if in.Role == types.RoleAdmin && !s.allowAdminSignup {
		s.security.LogPrivilegeEscalation(ctx, req, NormalizeEmail(in.Email), map[string]any{"requestedRole": string(in.Role)})
		return AuthResult{}, apperr.Forbidden(msgAdminSignup)
	}

	user, err := createAccount(ctx, s.repo, s.hasher, CreateUserInput(in))
	if err != nil {
		return AuthResult{}, err
	}

	token, err := s.issue(user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	s.log.Info("new user registered", zap.String("email", user.Email), zap.String("userId", user.ID))
	return AuthResult{User: user, Token: token}, nil
}

// Login checks credentials and maintains the lockout state. Unknown email
// and wrong password share one message; a locked account is reported as such
// before the password is compared.
func (s *AuthService) Login(ctx context.Context, req audit.Request, in LoginInput) (AuthResult, error) {
	email := NormalizeEmail(in.Email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.security.LogAuthFailure(ctx, req, email, nil)
			return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
		}
		return AuthResult{}, apperr.Internal("Failed to login user", err)
	}

	now := s.now()
	if user.IsLocked(now) {
		s.security.LogAccountLocked(ctx, req, email, nil)
		return AuthResult{}, apperr.Forbidden(msgAccountLocked)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		failed, err := s.repo.RecordLoginFailure(ctx, user.ID, s.policy, now)
		if err != nil {
			return AuthResult{}, apperr.Internal("Failed to login user", err)
		}
		s.security.LogAuthFailure(ctx, req, email, map[string]any{"attempts": failed.LoginAttempts})
		if failed.IsLocked(now) {
			s.security.LogAccountLocked(ctx, req, email, map[string]any{
				"attempts":  failed.LoginAttempts,
				"lockUntil": failed.LockUntil.UTC().Format(time.RFC3339),
			})
			return AuthResult{}, apperr.Forbidden(msgAccountLocked)
		}
		return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}

	if !user.IsActive {
		return AuthResult{}, apperr.Forbidden(msgAccountInactive)
	}

	if err := s.repo.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return AuthResult{}, apperr.Internal("Failed to login user", err)
	}
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLogin = &now

	token, err := s.issue(user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	s.security.LogAuthSuccess(ctx, req, user.ID, email)
	s.log.Info("user logged in", zap.String("email", email))
	return AuthResult{User: user, Token: token}, nil
}

// CurrentUser reloads the authenticated user.
func (s *AuthService) CurrentUser(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound(msgUserNotFound)
		}
		return types.User{}, apperr.Internal("Failed to get user", err)
	}
	return user, nil
}

// CreateAdmin provisions an administrator outside the HTTP surface.
func (s *AuthService) CreateAdmin(ctx context.Context, name, email, password string) (types.User, error) {
	user, err := createAccount(ctx, s.repo, s.hasher, CreateUserInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     types.RoleAdmin,
	})
	if err != nil {
		return types.User{}, err
	}
	s.log.Info("admin account created", zap.String("email", user.Email), zap.String("userId", user.ID))
	return user, nil
}

func (s *AuthService) issue(userID string) (string, error) {
	token, err := s.tokens.Issue(userID)
	if err != nil {
		msg := "Failed to generate token"
		if errors.Is(err, auth.ErrSecretMissing) {
			msg = auth.ErrSecretMissing.Error()
		}
		return "", apperr.Internal(msg, err)
	}
	return token, nil
}
