package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vsmm-world/userapi/internal/apperr"
	"github.com/vsmm-world/userapi/internal/audit"
	"github.com/vsmm-world/userapi/internal/services"
	"github.com/vsmm-world/userapi/types"
)

// AuthHandler provides the registration, login and current-user endpoints.
type AuthHandler struct {
	auth *services.AuthService
	resp *Responder
}

func NewAuthHandler(authService *services.AuthService, resp *Responder) *AuthHandler {
	return &AuthHandler{auth: authService, resp: resp}
}

// AuthLimits holds optional per-route middleware such as rate limiters.
type AuthLimits struct {
	Register func(http.Handler) http.Handler
	Login    func(http.Handler) http.Handler
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, gate *Gate, limits AuthLimits) {
	r.With(optional(limits.Register)...).Post("/register", handler.Register)
	r.With(optional(limits.Login)...).Post("/login", handler.Login)
	r.With(gate.Authenticate).Get("/me", handler.Me)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	req.normalize()
	if err := Validate(req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	result, err := h.auth.Register(r.Context(), audit.RequestFrom(r), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusCreated, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	req.Email = services.NormalizeEmail(req.Email)
	if err := Validate(req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), audit.RequestFrom(r), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusOK, result)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	current, ok := UserFromContext(r.Context())
	if !ok {
		h.resp.Fail(w, r, apperr.NotFound("User not found"))
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), current.ID)
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusOK, UserResponse{User: user})
}

type RegisterRequest struct {
	Name     string     `json:"name" validate:"min=2,max=50"`
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"min=6,strong_password"`
	Role     types.Role `json:"role" validate:"omitempty,oneof=user admin"`
}

func (req *RegisterRequest) normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = services.NormalizeEmail(req.Email)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	User types.User `json:"user"`
}

func optional(mw func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	if mw == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{mw}
}
