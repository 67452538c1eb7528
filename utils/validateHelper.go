package utils

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report json names so clients can map errors back to fields
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// ValidateInput runs struct tag validation and returns a *ValidationError on failure.
func ValidateInput(input any) error {
	err := getValidator().Struct(input)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return err
	}
	return &ValidationError{Fields: ProcessValidationErrors(err)}
}

// ProcessValidationErrors flattens validator errors into namespace -> failed tag.
func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"": err.Error()}
	}

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		key := ve.Namespace()
		if i := strings.Index(key, "."); i >= 0 {
			key = key[i+1:]
		}
		errorResponse[key] = ve.Tag()
	}
	return errorResponse
}

// InvalidField builds a single-field validation error for checks tags cannot express.
func InvalidField(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}
