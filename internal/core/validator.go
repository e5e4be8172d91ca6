package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tippslottet/internal/types"
)

// Validator wraps go-playground/validator for request payload validation.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator using struct json tags for field names in
// error details.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateStruct validates dst and translates the first violation into an
// AppError with per-field details.
func (v *Validator) ValidateStruct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation target must be a struct", err)
	}

	var violations validator.ValidationErrors
	if !errors.As(err, &violations) || len(violations) == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(violations))
	for _, f := range violations {
		details[f.Field()] = f.Tag()
	}

	first := violations[0]
	code := types.ErrCodeValidationMissingField
	message := fmt.Sprintf("field %q failed validation rule %q", first.Field(), first.Tag())
	switch first.Tag() {
	case "required":
		message = fmt.Sprintf("field %q is required", first.Field())
	case "email":
		code = types.ErrCodeValidationInvalidEmail
		message = fmt.Sprintf("field %q must be a valid email address", first.Field())
	case "gte", "lte", "min", "max":
		code = types.ErrCodeValidationInvalidScore
		message = fmt.Sprintf("field %q is out of range", first.Field())
	}

	return types.NewAppErrorWithDetails(code, message, err, details)
}
