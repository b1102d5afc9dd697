package middleware

import (
	"reflect"
	"strings"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator configures gin's validator for the operator API: fields are
// reported by their json (or form) names and the entity_type tag accepts the
// entity types the connector synchronizes.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(fieldName)
	_ = v.RegisterValidation("entity_type", func(fl validator.FieldLevel) bool {
		return integration.EntityType(fl.Field().String()).IsValid()
	})
}

func fieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		name, _, _ = strings.Cut(fld.Tag.Get("form"), ",")
	}
	return name
}

// ValidationMessage returns a human-readable validation message
func ValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min", "max":
		bound := "at least "
		if e.Tag() == "max" {
			bound = "at most "
		}
		if e.Type().Kind() == reflect.String {
			return "Must be " + bound + e.Param() + " characters"
		}
		return "Must be " + bound + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "entity_type":
		names := make([]string, 0, 2)
		for _, t := range integration.AllEntityTypes() {
			names = append(names, t.String())
		}
		return "Must be one of: " + strings.Join(names, " ")
	default:
		return "Invalid value"
	}
}
