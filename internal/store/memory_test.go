package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/types"
)

func seedUser(t *testing.T, repo *MemoryUserRepository, email string) types.User {
	t.Helper()
	user, err := repo.Create(context.Background(), types.User{
		Name: "User", Email: email, PasswordHash: "h", Role: types.RoleUser, IsActive: true,
	})
	require.NoError(t, err)
	return user
}

func TestMemoryUserRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user := seedUser(t, repo, "a@x.io")
	assert.True(t, types.ValidUserID(user.ID))

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", byID.Email)

	byEmail, err := repo.GetByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.Create(ctx, types.User{Email: "a@x.io"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = repo.GetByID(ctx, types.NewUserID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_Update(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	a := seedUser(t, repo, "a@x.io")
	seedUser(t, repo, "b@x.io")

	taken := "b@x.io"
	_, err := repo.Update(ctx, a.ID, types.UserChanges{Email: &taken})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	email, name := "c@x.io", "Renamed"
	updated, err := repo.Update(ctx, a.ID, types.UserChanges{Email: &email, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "h", updated.PasswordHash)
	assert.Equal(t, types.RoleUser, updated.Role)

	_, err = repo.GetByEmail(ctx, "a@x.io")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByEmail(ctx, "c@x.io")
	assert.NoError(t, err)

	_, err = repo.Update(ctx, types.NewUserID(), types.UserChanges{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_SetActive(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	a := seedUser(t, repo, "a@x.io")

	hash := "h2"
	_, err := repo.Update(ctx, a.ID, types.UserChanges{PasswordHash: &hash})
	require.NoError(t, err)

	got, err := repo.SetActive(ctx, a.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "h2", got.PasswordHash)

	_, err = repo.SetActive(ctx, types.NewUserID(), false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_ListActive(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	var ids []string
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		ids = append(ids, seedUser(t, repo, email).ID)
		time.Sleep(time.Millisecond)
	}
	inactive := seedUser(t, repo, "d@x.io")
	_, err := repo.SetActive(ctx, inactive.ID, false)
	require.NoError(t, err)

	users, total, err := repo.ListActive(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, users, 2)
	assert.Equal(t, ids[2], users[0].ID)
	assert.Equal(t, ids[1], users[1].ID)

	users, _, err = repo.ListActive(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, ids[0], users[0].ID)

	users, total, err = repo.ListActive(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, users)
}

func TestMemoryUserRepository_LoginBookkeeping(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	user := seedUser(t, repo, "a@x.io")
	policy := auth.DefaultLockoutPolicy()
	now := time.Now().UTC()

	var got types.User
	var err error
	for range policy.MaxAttempts {
		got, err = repo.RecordLoginFailure(ctx, user.ID, policy, now)
		require.NoError(t, err)
	}
	assert.Equal(t, policy.MaxAttempts, got.LoginAttempts)
	assert.True(t, got.IsLocked(now))

	later := now.Add(policy.LockDuration + time.Minute)
	got, err = repo.RecordLoginFailure(ctx, user.ID, policy, later)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LoginAttempts)
	assert.Nil(t, got.LockUntil)

	require.NoError(t, repo.RecordLoginSuccess(ctx, user.ID, later))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, got.LoginAttempts)
	require.NotNil(t, got.LastLogin)
	assert.True(t, got.LastLogin.Equal(later))
}

func TestMemoryUserRepository_ConcurrentFailuresCountEveryAttempt(t *testing.T) {
	repo := NewMemoryUserRepository()
	user := seedUser(t, repo, "a@x.io")
	policy := auth.LockoutPolicy{MaxAttempts: 100, LockDuration: time.Hour}
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.RecordLoginFailure(context.Background(), user.ID, policy, now)
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.LoginAttempts)
}
