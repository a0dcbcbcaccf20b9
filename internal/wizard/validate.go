package wizard

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation wraps every schema violation reported by the Flow setters.
var ErrValidation = errors.New("validation failed")

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registered to run on nil so a null answer is accepted.
	if err := v.RegisterValidation("scalar", isScalar, true); err != nil {
		panic(err)
	}
	return v
}

// isScalar accepts string, number, bool and null values.
func isScalar(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Interface, reflect.Pointer:
		return f.IsNil()
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func validationError(what string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s: %v", ErrValidation, what, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "min":
			parts = append(parts, field+" needs at least "+fe.Param()+" entries")
		case "gte":
			parts = append(parts, field+" must be >= "+fe.Param())
		case "scalar":
			parts = append(parts, field+" must be a string, number, boolean or null")
		default:
			parts = append(parts, field+" fails "+fe.Tag())
		}
	}
	return fmt.Errorf("%w: %s: %s", ErrValidation, what, strings.Join(parts, "; "))
}
