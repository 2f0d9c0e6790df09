package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports wire names (json, then query tag) instead of Go field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// fieldRule renders one validator tag as a message and its params.
type fieldRule struct {
	format string // receives field and param
	param  string // params key, empty for none
}

var fieldRules = map[string]fieldRule{
	"required": {format: "%s is required"},
	"gt":       {format: "%s must be greater than %s", param: "min"},
	"gte":      {format: "%s must be at least %s", param: "min"},
	"lt":       {format: "%s must be less than %s", param: "max"},
	"lte":      {format: "%s must be at most %s", param: "max"},
	"min":      {format: "%s must be at least %s", param: "min"},
	"max":      {format: "%s must be at most %s", param: "max"},
	"oneof":    {format: "%s must be one of: %s", param: "options"},
}

// ReadAndValidateRequest binds the body (or query for GET), applies
// `default` tags, then validates. It returns nil when req is valid.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fes validator.ValidationErrors
	if errors.As(err, &fes) {
		out := make([]ValidationError, 0, len(fes))
		for _, fe := range fes {
			out = append(out, fieldError(fe))
		}
		return out
	}

	// Bind failures: malformed JSON, or a number sent as a string.
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_MALFORMED", Message: msg}}
}

func fieldError(fe validator.FieldError) ValidationError {
	ve := ValidationError{
		Code:  "ERR_" + strings.ToUpper(fe.Tag()),
		Field: fe.Field(),
	}
	rule, ok := fieldRules[fe.Tag()]
	if !ok {
		ve.Message = fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
		return ve
	}

	param := fe.Param()
	if fe.Tag() == "oneof" {
		param = strings.ReplaceAll(param, " ", ", ")
	}
	if strings.Count(rule.format, "%s") == 1 {
		ve.Message = fmt.Sprintf(rule.format, fe.Field())
	} else {
		ve.Message = fmt.Sprintf(rule.format, fe.Field(), param)
	}

	switch {
	case rule.param == "options":
		ve.Params = map[string]interface{}{"options": strings.Fields(fe.Param())}
	case rule.param != "":
		ve.Params = map[string]interface{}{rule.param: fe.Param()}
	}
	return ve
}
