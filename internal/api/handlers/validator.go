package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Physical (9 digits), legal entity (10) and DIMEX (11 or 12) identifiers,
// optionally written with hyphens.
var cedulaPattern = regexp.MustCompile(`^[0-9]{9,12}$`)

// RegisterValidators adds the custom binding rules to gin's validator.
// Call it once before the router serves requests.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("cedula", validateCedula)
}

func validateCedula(fl validator.FieldLevel) bool {
	value := strings.ReplaceAll(strings.TrimSpace(fl.Field().String()), "-", "")
	return cedulaPattern.MatchString(value)
}
