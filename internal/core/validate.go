package core

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// checkVar validates value against tag and reports the first failure as a ValidationError on field.
func checkVar(field string, value any, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].Tag() {
	case "required":
		return invalid(field, "is required")
	case "email":
		return invalid(field, "must be a valid email address")
	case "uuid":
		return invalid(field, "must be a valid UUID")
	default:
		return invalid(field, "failed "+verrs[0].Tag()+" validation")
	}
}

// lookupID rejects ids no row can carry. Callers get ErrNotFound instead of a database cast error.
func lookupID(id string) error {
	if validate.Var(id, "required,uuid") != nil {
		return ErrNotFound
	}
	return nil
}
