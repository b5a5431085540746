package webhook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// structError runs struct validation and converts the first failure into a
// readable *domain.ErrValidation.
func structError(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ErrValidation{Message: err.Error()}
	}
	fe := verrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return &domain.ErrValidation{Field: field, Message: field + " is required"}
	case "oneof":
		return &domain.ErrValidation{Field: field, Message: fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))}
	case "max":
		return &domain.ErrValidation{Field: field, Message: fmt.Sprintf("%s must be at most %s characters", field, fe.Param())}
	default:
		return &domain.ErrValidation{Field: field, Message: fmt.Sprintf("%s failed %q check", field, fe.Tag())}
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
