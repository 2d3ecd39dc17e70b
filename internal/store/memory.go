package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/types"
)

// MemoryUserRepository keeps users in process memory. It backs the
// "memory" driver used for local runs and tests.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]types.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]types.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *MemoryUserRepository) ListActive(_ context.Context, offset, limit int) ([]types.User, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	r.mu.RLock()
	active := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		if user.IsActive {
			active = append(active, cloneUser(user))
		}
	}
	r.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.After(active[j].CreatedAt)
		}
		return active[i].ID > active[j].ID
	})

	total := len(active)
	if offset >= total {
		return []types.User{}, total, nil
	}
	end := min(offset+limit, total)
	return active[offset:end], total, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return types.User{}, ErrDuplicateEmail
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = types.NewUserID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LoginAttempts = 0
	user.LockUntil = nil

	r.users[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return cloneUser(user), nil
}

// Update writes only the fields set in changes.
func (r *MemoryUserRepository) Update(_ context.Context, id string, changes types.UserChanges) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if changes.Email != nil {
		if owner, taken := r.byEmail[*changes.Email]; taken && owner != id {
			return types.User{}, ErrDuplicateEmail
		}
		delete(r.byEmail, stored.Email)
		stored.Email = *changes.Email
		r.byEmail[stored.Email] = id
	}
	if changes.Name != nil {
		stored.Name = *changes.Name
	}
	if changes.PasswordHash != nil {
		stored.PasswordHash = *changes.PasswordHash
	}
	if changes.Role != nil {
		stored.Role = *changes.Role
	}
	if changes.IsActive != nil {
		stored.IsActive = *changes.IsActive
	}
	stored.UpdatedAt = time.Now().UTC()

	r.users[id] = stored
	return cloneUser(stored), nil
}

func (r *MemoryUserRepository) SetActive(_ context.Context, id string, active bool) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	stored.IsActive = active
	stored.UpdatedAt = time.Now().UTC()

	r.users[id] = stored
	return cloneUser(stored), nil
}

func (r *MemoryUserRepository) RecordLoginFailure(_ context.Context, id string, policy auth.LockoutPolicy, now time.Time) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	next := policy.Fail(auth.LockState{Attempts: user.LoginAttempts, LockUntil: user.LockUntil}, now)
	user.LoginAttempts = next.Attempts
	user.LockUntil = next.LockUntil
	user.UpdatedAt = now

	r.users[id] = user
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLogin = &now
	user.UpdatedAt = now

	r.users[id] = user
	return nil
}

// cloneUser detaches the pointer fields so callers cannot mutate stored state.
func cloneUser(u types.User) types.User {
	if u.LockUntil != nil {
		t := *u.LockUntil
		u.LockUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	return u
}
