// Package validation checks decoded request bodies against their struct tags.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fastctx/fastctx/pkg/source"
	"github.com/go-playground/validator/v10"
)

// Validator interface defines validation operations
type Validator interface {
	Validate(v interface{}) (bool, []string)
}

// StructValidator validates `validate` struct tags and reports fields by
// their JSON names.
type StructValidator struct {
	validate *validator.Validate
}

// New creates a StructValidator with the custom tags registered
func New() *StructValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("githuburl", func(fl validator.FieldLevel) bool {
		return source.ValidateGitHubURL(fl.Field().String()) == nil
	})
	return &StructValidator{validate: v}
}

// Validate returns false and one message per failed field
func (s *StructValidator) Validate(v interface{}) (bool, []string) {
	err := s.validate.Struct(v)
	if err == nil {
		return true, nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false, []string{err.Error()}
	}

	errors := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		errors = append(errors, formatError(e))
	}
	return false, errors
}

func formatError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("missing required field: %s", e.Field())
	case "min":
		return fmt.Sprintf("field %s: value too small (min %s)", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("field %s: value too large (max %s)", e.Field(), e.Param())
	case "githuburl":
		return fmt.Sprintf("field %s: must be a https://github.com/<owner>/<repo> URL", e.Field())
	default:
		return fmt.Sprintf("field %s: failed %s validation", e.Field(), e.Tag())
	}
}

// NoOpValidator is a validator that always passes
type NoOpValidator struct{}

// NewNoOpValidator creates a no-op validator
func NewNoOpValidator() *NoOpValidator {
	return &NoOpValidator{}
}

// Validate always returns true
func (n *NoOpValidator) Validate(v interface{}) (bool, []string) {
	return true, nil
}
