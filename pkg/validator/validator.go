package validator

import (
	stderrors "errors"
	"fmt"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/pkg/errors"
)

// Validator checks request structs against their validate tags.
type Validator interface {
	Validate(interface{}) error
}

type validator struct {
	v *playground.Validate
}

// New returns a validator that also understands the "tier" tag, which accepts
// any name model.ParseTier does.
func New() Validator {
	v := playground.New()
	v.SetTagName("validate")
	_ = v.RegisterValidation("tier", func(fl playground.FieldLevel) bool {
		_, err := model.ParseTier(fl.Field().String())
		return err == nil
	})
	return &validator{v: v}
}

// Validate returns a BadRequest AppError naming each failed field.
func (v *validator) Validate(obj interface{}) error {
	err := v.v.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrs playground.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.BadRequest("invalid request", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.BadRequest(strings.Join(msgs, "; "), err)
}

func describe(fe playground.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "tier":
		return fmt.Sprintf("%s must be one of immediate, daily, weekly, disabled", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
