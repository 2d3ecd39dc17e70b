package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vsmm-world/userapi/internal/apperr"
	"github.com/vsmm-world/userapi/internal/services"
	"github.com/vsmm-world/userapi/types"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// UserHandler provides HTTP handlers for user management.
type UserHandler struct {
	users *services.UserService
	resp  *Responder
}

func NewUserHandler(userService *services.UserService, resp *Responder) *UserHandler {
	return &UserHandler{users: userService, resp: resp}
}

// UserRouter registers user routes; every route requires authentication.
func UserRouter(r chi.Router, handler *UserHandler, gate *Gate) {
	adminOnly := gate.Authorize(types.RoleAdmin)
	validID := handler.requireValidID

	r.Use(gate.Authenticate)
	r.Get("/", handler.ListUsers)
	r.With(adminOnly).Post("/", handler.CreateUser)
	r.Route("/{id}", func(r chi.Router) {
		r.With(validID).Get("/", handler.GetUser)
		r.With(validID, gate.RequireOwnerOrAdmin(handler.resolveOwner)).Put("/", handler.UpdateUser)
		r.With(adminOnly, validID).Delete("/", handler.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	result, err := h.users.List(r.Context(), page, limit)
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.Page(w, result.Users, result.Pagination)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusOK, UserResponse{User: user})
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
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

	user, err := h.users.Create(r.Context(), services.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusCreated, UserResponse{User: user})
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := UserFromContext(r.Context())
	if !ok {
		h.resp.Fail(w, r, apperr.Unauthorized(msgAuthRequired))
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	req.normalize()
	if err := Validate(req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	user, err := h.users.Update(r.Context(), actor, chi.URLParam(r, "id"), services.UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusOK, UserResponse{User: user})
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := UserFromContext(r.Context())
	if !ok {
		h.resp.Fail(w, r, apperr.Unauthorized(msgAuthRequired))
		return
	}

	msg, err := h.users.Deactivate(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *UserHandler) requireValidID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !types.ValidUserID(chi.URLParam(r, "id")) {
			h.resp.Fail(w, r, apperr.Validation([]apperr.FieldError{{Field: "id", Message: msgInvalidUserID}}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveOwner loads the addressed user; a user account is owned by itself.
func (h *UserHandler) resolveOwner(r *http.Request) (string, error) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// UpdateUserRequest is a partial update; absent fields stay unchanged.
type UpdateUserRequest struct {
	Name     *string     `json:"name" validate:"omitempty,min=2,max=50"`
	Email    *string     `json:"email" validate:"omitempty,email"`
	Password *string     `json:"password" validate:"omitempty,min=6,strong_password"`
	Role     *types.Role `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive *bool       `json:"isActive"`
}

func (req *UpdateUserRequest) normalize() {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.Email != nil {
		email := services.NormalizeEmail(*req.Email)
		req.Email = &email
	}
}

// parsePagination reads page and limit, falling back to defaults for
// missing or non-positive values.
func parsePagination(r *http.Request) (page, limit int) {
	page = positiveInt(r.URL.Query().Get("page"), defaultPage)
	limit = positiveInt(r.URL.Query().Get("limit"), defaultLimit)
	return page, limit
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
