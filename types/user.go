package types

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Role is a coarse permission label attached to every account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account in the system.
// It contains identity, role, lockout bookkeeping and audit metadata.
type User struct {
	// ID is the unique, opaque identifier of the user (24 hex characters).
	ID string `json:"id"`

	// Name is the user's display name.
	Name string `json:"name"`

	// Email is the user's lower-cased, unique email address.
	Email string `json:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-"`

	// Role indicates the user's authorization level.
	Role Role `json:"role"`

	// IsActive is false once the account has been soft deleted.
	IsActive bool `json:"isActive"`

	// LoginAttempts counts consecutive failed logins.
	LoginAttempts int `json:"-"`

	// LockUntil, when set and in the future, blocks authentication.
	LockUntil *time.Time `json:"-"`

	// LastLogin is the timestamp of the most recent successful login.
	LastLogin *time.Time `json:"lastLogin,omitempty"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserChanges names the profile fields an update overwrites.
// Nil fields keep whatever value is stored.
type UserChanges struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Role         *Role
	IsActive     *bool
}

// Empty reports whether no field is set.
func (c UserChanges) Empty() bool {
	return c.Name == nil && c.Email == nil && c.PasswordHash == nil && c.Role == nil && c.IsActive == nil
}

// IsLocked reports whether a lock exists and is strictly in the future.
func (u User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// NewUserID returns a fresh identifier in the ObjectID hex form used by every store.
func NewUserID() string {
	return bson.NewObjectID().Hex()
}

// ValidUserID reports whether id has the ObjectID hex form.
func ValidUserID(id string) bool {
	_, err := bson.ObjectIDFromHex(id)
	return err == nil
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination computes the page count for total items split by limit.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}
