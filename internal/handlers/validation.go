package handlers

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vsmm-world/userapi/internal/apperr"
)

const (
	msgRequired      = "This field is required"
	msgInvalidEmail  = "Please provide a valid email address"
	msgPasswordShort = "Password must be at least 6 characters long"
	msgPasswordWeak  = "Password must contain at least one uppercase letter, one lowercase letter, and one number"
	msgNameLength    = "Name must be between 2 and 50 characters"
	msgInvalidRole   = `Role must be either "user" or "admin"`
	msgInvalidUserID = "Invalid user ID format"
)

var (
	hasLower = regexp.MustCompile(`[a-z]`)
	hasUpper = regexp.MustCompile(`[A-Z]`)
	hasDigit = regexp.MustCompile(`\d`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("strong_password", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return hasLower.MatchString(s) && hasUpper.MatchString(s) && hasDigit.MatchString(s)
	})
	return v
}

// Validate checks v against its validate tags and returns an apperr
// validation error listing every failing field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("validation failed", err)
	}

	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperr.Validation(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "name":
		return msgNameLength
	case "email":
		return msgInvalidEmail
	case "role":
		return msgInvalidRole
	case "password":
		switch fe.Tag() {
		case "required":
			return msgRequired
		case "strong_password":
			return msgPasswordWeak
		default:
			return msgPasswordShort
		}
	}
	if fe.Tag() == "required" {
		return msgRequired
	}
	return fe.Field() + " is invalid"
}
