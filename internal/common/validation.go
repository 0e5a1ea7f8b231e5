package common

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// NewValidationError builds a 422 AppError carrying a field-level reason.
func NewValidationError(field, reason, message string, err error) *AppError {
	appErr := NewAppError("VALIDATION_ERROR", message, http.StatusUnprocessableEntity, err)
	appErr.Details = FieldError{Field: field, Reason: reason}
	return appErr
}

// ValidationDetails converts validator errors into field errors. Field names
// are lower camel case to match the JSON payloads.
func ValidationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: lowerFirst(fe.Field()), Reason: fe.Tag()})
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
