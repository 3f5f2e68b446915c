package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs validator/v10 into echo.  Register it with
// e.Validator = handler.NewRequestValidator().
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// bindAndValidate binds the body into req and validates it.  On failure it
// writes a 400 response and returns done=true; the handler must return the
// accompanying error.
func bindAndValidate(c echo.Context, req interface{}) (done bool, err error) {
	if err := c.Bind(req); err != nil {
		return true, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return true, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input"})
		}
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		return true, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
	}
	return false, nil
}
