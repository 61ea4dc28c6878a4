package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// configure applies the shared tag name func and aliases to v.
// - Uses JSON tag names in errors.
// - Registers alias tags for common validations.
func configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// the backend rejects passwords outside 6..32
	v.RegisterAlias("pwd", "min=6,max=32")
	v.RegisterAlias("taskstatus", "oneof=pending in-progress done")
	v.RegisterAlias("nonzero", "required")
}

// Validator returns the process-wide validator used outside of Gin binding
// (credentials, registration, push payloads).
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		configure(validate)
	})
	return validate
}

// Struct validates s with the shared validator.
func Struct(s any) error {
	return Validator().Struct(s)
}

// Init configures the validator used by Gin's binding the same way.
func Init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		configure(v)
	}
}

// ToDetails converts validation/binding errors into a map[field]message.
func ToDetails(err error) map[string]string {
	if err == nil {
		return nil
	}

	// Invalid JSON payloads
	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &ute) {
		return map[string]string{"payload": "invalid json"}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = formatFieldError(fe)
		}
		return out
	}

	// Fallback
	return map[string]string{"payload": "invalid payload"}
}

func formatFieldError(fe validator.FieldError) string {
	// aliases report the alias name from Tag(); the underlying rule is what we describe
	tag := fe.ActualTag()
	param := fe.Param()
	kind := fe.Kind()

	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "len":
		if param != "" {
			return fmt.Sprintf("must be exactly %s characters long", param)
		}
		return "invalid length"
	case "min":
		if param != "" {
			if isNumberKind(kind) {
				return "must be at least " + param
			}
			return "must be at least " + param + " characters long"
		}
		return "too small"
	case "max":
		if param != "" {
			if isNumberKind(kind) {
				return "must be at most " + param
			}
			return "must be at most " + param + " characters long"
		}
		return "too large"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be greater than or equal to " + param
	case "lt":
		return "must be less than " + param
	case "lte":
		return "must be less than or equal to " + param
	case "eqfield":
		return "must match " + lowerFirst(param)
	case "nefield":
		return "must differ from " + lowerFirst(param)
	case "oneof":
		return "must be one of: " + strings.Join(splitParams(param), ", ")
	case "dive":
		return "contains an invalid element"
	default:
		return "is invalid (" + tag + ")"
	}
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func splitParams(p string) []string {
	if p == "" {
		return nil
	}
	parts := strings.Fields(p)
	if len(parts) > 1 {
		return parts
	}
	if strings.Contains(p, ",") {
		return strings.Split(p, ",")
	}
	return []string{p}
}
