package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vsmm-world/userapi/internal/apperr"
	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/internal/store"
	"github.com/vsmm-world/userapi/types"
	"go.uber.org/zap"
)

const (
	msgUserNotFound     = "User not found"
	msgEmailExists      = "User with this email already exists"
	msgEmailInUse       = "Email already in use"
	msgCannotDeleteSelf = "You cannot delete your own account"
	msgUserDeactivated  = "User deactivated successfully"

	defaultPage  = 1
	defaultLimit = 10
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	ListActive(ctx context.Context, offset, limit int) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id string, changes types.UserChanges) (types.User, error)
	SetActive(ctx context.Context, id string, active bool) (types.User, error)
	RecordLoginFailure(ctx context.Context, id string, policy auth.LockoutPolicy, now time.Time) (types.User, error)
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
}

// PasswordHasher hashes and checks plaintext passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     types.Role
}

// UpdateUserInput carries a partial update; nil fields are left unchanged.
type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
	Role     *types.Role
	IsActive *bool
}

// UserPage is one page of active users.
type UserPage struct {
	Users      []types.User
	Pagination types.Pagination
}

// UserService encapsulates user management use-cases.
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher
	log    *zap.Logger
}

func NewUserService(repo UserRepository, hasher PasswordHasher, log *zap.Logger) *UserService {
	return &UserService{repo: repo, hasher: hasher, log: log.Named("users")}
}

// List returns active users newest first. Non-positive page or limit fall back to 1 and 10.
func (s *UserService) List(ctx context.Context, page, limit int) (UserPage, error) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}

	users, total, err := s.repo.ListActive(ctx, (page-1)*limit, limit)
	if err != nil {
		return UserPage{}, apperr.Internal("Failed to get users", err)
	}
	return UserPage{Users: users, Pagination: types.NewPagination(page, limit, total)}, nil
}

func (s *UserService) Get(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound(msgUserNotFound)
		}
		return types.User{}, apperr.Internal("Failed to get user", err)
	}
	return user, nil
}

// Create adds an account on behalf of an administrator.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (types.User, error) {
	user, err := createAccount(ctx, s.repo, s.hasher, in)
	if err != nil {
		return types.User{}, err
	}
	s.log.Info("user created by admin", zap.String("email", user.Email), zap.String("userId", user.ID))
	return user, nil
}

// Update applies in to the user identified by id. Role and active flag
// are only honoured when actor is an admin. Only the requested fields are
// written, so concurrent changes to other fields survive.
func (s *UserService) Update(ctx context.Context, actor types.User, id string, in UpdateUserInput) (types.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	var changes types.UserChanges
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		if email != "" && email != user.Email {
			if _, err := s.repo.GetByEmail(ctx, email); err == nil {
				return types.User{}, apperr.Conflict(msgEmailInUse)
			} else if !errors.Is(err, store.ErrNotFound) {
				return types.User{}, apperr.Internal("Failed to update user", err)
			}
			changes.Email = &email
		}
	}
	if in.Name != nil {
		if name := strings.TrimSpace(*in.Name); name != "" {
			changes.Name = &name
		}
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return types.User{}, apperr.Internal("Failed to update user", err)
		}
		changes.PasswordHash = &hash
	}
	if actor.Role == types.RoleAdmin {
		if in.Role != nil && in.Role.Valid() {
			changes.Role = in.Role
		}
		if in.IsActive != nil {
			changes.IsActive = in.IsActive
		}
	}
	if changes.Empty() {
		return user, nil
	}

	updated, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return types.User{}, apperr.Conflict(msgEmailInUse)
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, apperr.NotFound(msgUserNotFound)
		}
		return types.User{}, apperr.Internal("Failed to update user", err)
	}

	s.log.Info("user updated", zap.String("email", updated.Email), zap.String("userId", updated.ID))
	return updated, nil
}

// Deactivate soft deletes the user identified by id. An actor cannot deactivate itself.
func (s *UserService) Deactivate(ctx context.Context, actor types.User, id string) (string, error) {
	if actor.ID == id {
		return "", apperr.BadRequest(msgCannotDeleteSelf)
	}

	user, err := s.repo.SetActive(ctx, id, false)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.NotFound(msgUserNotFound)
		}
		return "", apperr.Internal("Failed to delete user", err)
	}

	s.log.Info("user deactivated", zap.String("email", user.Email), zap.String("userId", user.ID))
	return msgUserDeactivated, nil
}

// NormalizeEmail trims and lower-cases an address for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// createAccount is shared by registration, admin creation and the CLI bootstrap.
func createAccount(ctx context.Context, repo UserRepository, hasher PasswordHasher, in CreateUserInput) (types.User, error) {
	email := NormalizeEmail(in.Email)
	role := in.Role
	if role == "" {
		role = types.RoleUser
	}

	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return types.User{}, apperr.Conflict(msgEmailExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, apperr.Internal("Failed to create user", err)
	}

	hash, err := hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, apperr.Internal("Failed to create user", err)
	}

	user, err := repo.Create(ctx, types.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, apperr.Conflict(msgEmailExists)
		}
		return types.User{}, apperr.Internal("Failed to create user", err)
	}
	return user, nil
}
