package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/baechuer/newsroom/internal/domain"
)

var v = validator.New()

// Struct runs the `validate` tags on s. Failures come back as a validation
// AppError whose Meta maps each field to the failed tag.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return domain.ErrValidation(err.Error())
	}

	msgs := make([]string, 0, len(ves))
	meta := make(map[string]string, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, formatFieldError(fe))
		meta[fe.Namespace()] = fe.Tag()
	}
	return domain.ErrValidationMeta(strings.Join(msgs, "; "), meta)
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
