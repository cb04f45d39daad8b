package users

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-auth-session/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError is a client-side field check failure. Message is suitable for display.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return errors.ErrValidation
}

type fieldRule struct {
	field   string
	tag     string
	message string
}

// Rules are reported in this order regardless of struct field order, so the
// user sees missing fields before a mismatch or a malformed email.
var registrationRules = []fieldRule{
	{"Username", "required", "Username is required"},
	{"Email", "required", "Email is required"},
	{"Password", "required", "Password is required"},
	{"ConfirmPassword", "eqfield", "Passwords do not match"},
	{"Email", "email", "Please enter a valid email address"},
}

// Validate checks required fields, password confirmation and email shape.
// The returned error is a *ValidationError wrapping errors.ErrValidation.
func (d RegistrationDetails) Validate() error {
	err := validate.Struct(d.Normalized())
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("[RegistrationDetails Validate] %w: %w", errors.ErrValidation, err)
	}

	for _, rule := range registrationRules {
		for _, fe := range fieldErrs {
			if fe.StructField() == rule.field && fe.Tag() == rule.tag {
				return &ValidationError{Field: rule.field, Message: rule.message}
			}
		}
	}

	fe := fieldErrs[0]
	return &ValidationError{Field: fe.StructField(), Message: fmt.Sprintf("%s is invalid", fe.Field())}
}
