package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/vsmm-world/userapi/internal/apperr"
	"github.com/vsmm-world/userapi/types"
	"go.uber.org/zap"
)

const msgInternalError = "Internal Server Error"

type contextKey string

const contextUserKey contextKey = "user"

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// UserFromContext returns the user attached by Authenticate.
func UserFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// Envelope is the body of every JSON response.
type Envelope struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data,omitempty"`
	Error      *ErrorBody        `json:"error,omitempty"`
	Pagination *types.Pagination `json:"pagination,omitempty"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Responder writes envelopes. In debug mode internal messages and stacks
// are returned to the client; otherwise 5xx messages are generalized.
type Responder struct {
	debug bool
	log   *zap.Logger
}

func NewResponder(debug bool, log *zap.Logger) *Responder {
	return &Responder{debug: debug, log: log}
}

func (rs *Responder) OK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func (rs *Responder) Page(w http.ResponseWriter, data any, p types.Pagination) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Pagination: &p})
}

// Fail converts err into an error envelope.
func (rs *Responder) Fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)

	body := &ErrorBody{Message: appErr.Message}
	if appErr.Status >= http.StatusInternalServerError {
		rs.log.Error("request failed",
			zap.Int("status", appErr.Status),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if !rs.debug {
			body.Message = msgInternalError
		}
	}
	if rs.debug {
		body.Stack = appErr.Stack
	}

	env := Envelope{Success: false, Error: body}
	if len(appErr.Fields) > 0 {
		env.Data = map[string]any{"errors": appErr.Fields}
	}
	writeJSON(w, appErr.Status, env)
}

// NotFound answers unknown routes.
func (rs *Responder) NotFound(w http.ResponseWriter, r *http.Request) {
	rs.Fail(w, r, apperr.NotFound("Route not found: "+r.URL.RequestURI()))
}

func (rs *Responder) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, Envelope{
		Success: false,
		Error:   &ErrorBody{Message: "Method not allowed: " + r.Method + " " + r.URL.Path},
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched so that validation reports the missing fields.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return &apperr.Error{Status: http.StatusRequestEntityTooLarge, Message: "Request entity too large"}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperr.Validation([]apperr.FieldError{{Field: typeErr.Field, Message: typeMessage(typeErr)}})
	}
	return apperr.BadRequest("Invalid JSON body")
}

func typeMessage(err *json.UnmarshalTypeError) string {
	if err.Type.Kind() == reflect.Bool {
		return err.Field + " must be a boolean"
	}
	return err.Field + " must be a " + err.Type.String()
}
