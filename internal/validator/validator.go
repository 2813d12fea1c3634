package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// New creates the validator instance shared by all handlers, with the
// custom validations registered.
func New() *validator.Validate {
	v := validator.New()

	// "notblank" rejects whitespace-only strings; user ids and book
	// names must carry meaningful content.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	return v
}
