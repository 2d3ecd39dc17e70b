package services

import (
	"strings"
	"testing"
	"time"

	"github.com/vsmm-world/userapi/internal/audit"
	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

// fastHasher keeps bcrypt semantics at the minimum cost so tests stay quick.
type fastHasher struct{}

func (fastHasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	return string(b), err
}

func (fastHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

type fixture struct {
	repo   *store.MemoryUserRepository
	tokens *auth.TokenIssuer
	auth   *AuthService
	users  *UserService
	logs   *observer.ObservedLogs
	now    time.Time
}

func newFixture(t *testing.T, opts ...AuthOption) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	f := &fixture{
		repo:   store.NewMemoryUserRepository(),
		tokens: auth.NewTokenIssuer("test-secret", time.Hour),
		logs:   logs,
		now:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	opts = append([]AuthOption{WithClock(clock)}, opts...)

	security := audit.NewSecurityLogger(log)
	f.auth = NewAuthService(f.repo, fastHasher{}, f.tokens, security, log, opts...)
	f.users = NewUserService(f.repo, fastHasher{}, log)
	return f
}

func (f *fixture) securityEvents(eventType audit.EventType) int {
	return f.logs.FilterFieldKey("type").Filter(func(e observer.LoggedEntry) bool {
		return strings.HasPrefix(e.Message, "[SECURITY] "+string(eventType)+" ")
	}).Len()
}

var testReq = audit.Request{IP: "127.0.0.1", UserAgent: "test", Path: "/api/auth/login", Method: "POST"}
