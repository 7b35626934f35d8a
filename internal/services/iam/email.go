package iam

import (
	"github.com/go-playground/validator/v10"

	"github.com/salonbook/salonapi/internal/repository"
)

var validate = validator.New()

// ValidEmail applies the same email rule as the HTTP request validators, so
// the CLI and service callers accept exactly what the API accepts.
func ValidEmail(email string) bool {
	return validate.Var(repository.NormalizeEmail(email), "required,email") == nil
}
