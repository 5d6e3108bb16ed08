package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sangkips/pharmadesk/pkg/apperror"
)

// SetupValidator makes validation errors name fields by their JSON (or form)
// key instead of the Go struct field.
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	}
}

// BindingError converts an error from ShouldBind* into an AppError. Field
// failures become a 422 with one entry per field; anything else (usually
// malformed JSON) is a 400.
func BindingError(err error) *apperror.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperror.NewValidationError(FormatValidationErrors(verrs))
	}
	return apperror.Wrap(400, "Invalid request body", err)
}

// FormatValidationErrors formats validator errors as field errors
func FormatValidationErrors(verrs validator.ValidationErrors) []apperror.FieldError {
	out := make([]apperror.FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, apperror.FieldError{
			Field:   e.Field(),
			Message: validationMessage(e),
		})
	}
	return out
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	default:
		return "Invalid value"
	}
}
