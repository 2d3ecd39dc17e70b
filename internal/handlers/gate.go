package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/vsmm-world/userapi/internal/apperr"
	"github.com/vsmm-world/userapi/internal/audit"
	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/types"
)

const (
	msgAuthRequired   = "Authentication required. Please provide a valid token."
	msgInvalidToken   = "Invalid token"
	msgTokenExpired   = "Token expired"
	msgAccountBlocked = "Account is inactive. Please contact administrator."
	msgOwnResources   = "Access denied. You can only access your own resources."
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserLoader loads the user a verified token refers to.
type UserLoader interface {
	CurrentUser(ctx context.Context, id string) (types.User, error)
}

// OwnerResolver returns the id of the user owning the resource addressed by r.
type OwnerResolver func(r *http.Request) (string, error)

// Gate authenticates requests and enforces role and ownership rules.
type Gate struct {
	tokens   TokenVerifier
	users    UserLoader
	security *audit.SecurityLogger
	resp     *Responder
}

func NewGate(tokens TokenVerifier, users UserLoader, security *audit.SecurityLogger, resp *Responder) *Gate {
	return &Gate{tokens: tokens, users: users, security: security, resp: resp}
}

// Authenticate requires a valid bearer token for an active user and stores
// that user in the request context.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			g.resp.Fail(w, r, apperr.Unauthorized(msgAuthRequired))
			return
		}

		userID, err := g.tokens.Verify(token)
		if err != nil {
			g.resp.Fail(w, r, g.tokenError(r, err))
			return
		}

		user, err := g.users.CurrentUser(r.Context(), userID)
		if err != nil {
			g.resp.Fail(w, r, err)
			return
		}
		if !user.IsActive {
			g.resp.Fail(w, r, apperr.Forbidden(msgAccountBlocked))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (g *Gate) tokenError(r *http.Request, err error) error {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		g.security.LogInvalidToken(r.Context(), audit.RequestFrom(r), "expired")
		return apperr.Unauthorized(msgTokenExpired)
	case errors.Is(err, auth.ErrSecretMissing):
		return apperr.Internal(auth.ErrSecretMissing.Error(), err)
	default:
		g.security.LogInvalidToken(r.Context(), audit.RequestFrom(r), "invalid")
		return apperr.Unauthorized(msgInvalidToken)
	}
}

// Authorize admits only users holding one of roles.
func (g *Gate) Authorize(roles ...types.Role) func(http.Handler) http.Handler {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	denied := "Access denied. Required role: " + strings.Join(names, " or ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				g.resp.Fail(w, r, apperr.Unauthorized(msgAuthRequired))
				return
			}
			if !slices.Contains(roles, user.Role) {
				g.security.LogUnauthorizedAccess(r.Context(), audit.RequestFrom(r), user.ID)
				g.resp.Fail(w, r, apperr.Forbidden(denied))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnerOrAdmin resolves the addressed resource and admits the
// request when the caller owns it or is an admin.
func (g *Gate) RequireOwnerOrAdmin(resolve OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				g.resp.Fail(w, r, apperr.Unauthorized(msgAuthRequired))
				return
			}

			ownerID, err := resolve(r)
			if err != nil {
				g.resp.Fail(w, r, err)
				return
			}
			if user.ID != ownerID && user.Role != types.RoleAdmin {
				g.security.LogUnauthorizedAccess(r.Context(), audit.RequestFrom(r), user.ID)
				g.resp.Fail(w, r, apperr.Forbidden(msgOwnResources))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
