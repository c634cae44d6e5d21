package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

// Codes reported for request validation failures.
const (
	CodeMissingFields  = "missing_fields"
	CodeInvalidRequest = "invalid_request"
)

// Validator adapts go-playground/validator to echo.Validator and reports
// failures as bad_request AppErrors keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator that names fields by their json or query tag.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return &Validator{validate: v}
}

// Validate implements echo.Validator.
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errorbank.BadRequest("invalid request", errorbank.WithCode(CodeInvalidRequest), errorbank.WithCause(err))
	}

	code := CodeInvalidRequest
	fields := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		if missing(fe) {
			code = CodeMissingFields
		}
		fields[fieldPath(fe)] = rule(fe)
	}
	return errorbank.BadRequest("request validation failed", errorbank.WithCode(code), errorbank.WithDetail("fields", fields))
}

// missing reports absent values: a failed required rule, or an empty list
// failing its min length.
func missing(fe validator.FieldError) bool {
	if fe.Tag() == "required" {
		return true
	}
	if fe.Tag() != "min" {
		return false
	}
	switch fe.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return reflect.ValueOf(fe.Value()).Len() == 0
	}
	return false
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func rule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
