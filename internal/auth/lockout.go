package auth

import "time"

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockDuration     = 2 * time.Hour
)

// LockoutPolicy decides how consecutive failed logins turn into a temporary lock.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:  DefaultMaxLoginAttempts,
		LockDuration: DefaultLockDuration,
	}
}

// LockState is the per-account lockout bookkeeping.
type LockState struct {
	Attempts  int
	LockUntil *time.Time
}

// Locked is true iff a lock exists and is strictly in the future.
func (s LockState) Locked(now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// Fail returns the state after one more failed password check at now.
// An expired lock restarts the count at 1; otherwise the count grows and
// reaching MaxAttempts on an unlocked account sets a lock.
// Stores that cannot run this in-process must express the same transition
// as a single atomic update.
func (p LockoutPolicy) Fail(s LockState, now time.Time) LockState {
	if s.LockUntil != nil && s.LockUntil.Before(now) {
		return LockState{Attempts: 1}
	}

	next := LockState{Attempts: s.Attempts + 1, LockUntil: s.LockUntil}
	if next.Attempts >= p.MaxAttempts && !s.Locked(now) {
		until := now.Add(p.LockDuration)
		next.LockUntil = &until
	}
	return next
}

// Succeed returns the cleared state recorded on a successful login.
func (p LockoutPolicy) Succeed() LockState {
	return LockState{}
}
