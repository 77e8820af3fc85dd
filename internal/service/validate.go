package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags and converts the first failure into a
// ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return appErrors.NewValidation("", err.Error())
	}

	fe := verrs[0]
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return appErrors.NewValidation(field, "is required")
	case "min", "gte":
		return appErrors.NewValidation(field, "must be at least "+param)
	case "max", "lte":
		return appErrors.NewValidation(field, "must be at most "+param)
	case "gt":
		return appErrors.NewValidation(field, "must be greater than "+param)
	case "oneof":
		return appErrors.NewValidation(field, "must be one of: "+param)
	default:
		return appErrors.NewValidation(field, "is invalid")
	}
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return appErrors.NewValidation(field, "must not be empty")
	}
	return nil
}
