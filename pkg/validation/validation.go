// Package validation builds the request validator and turns its errors into a
// single validation error listing every bad field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	apperrors "github.com/Pawieee/microbank/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validator wraps go-playground/validator with the decimal tags registered.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(jsonName)
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("decimal_gt", decimalCompare(func(a, b decimal.Decimal) bool { return a.GreaterThan(b) }))
	_ = v.RegisterValidation("decimal_gte", decimalCompare(func(a, b decimal.Decimal) bool { return a.GreaterThanOrEqual(b) }))
	_ = v.RegisterValidation("money", isMoney)

	return &Validator{validate: v}
}

// Struct validates s and returns a *errors.BusinessError naming every invalid
// field, or nil.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fields := Fields(err)
	if len(fields) == 0 {
		return apperrors.NewBusinessError(apperrors.ErrCodeValidation, err.Error(), apperrors.ErrValidation)
	}
	return apperrors.WrapValidation(fields)
}

// Fields flattens validator errors into field name to reason.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = reason(fe)
	}
	return fields
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "decimal_gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "decimal_gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "money":
		return "must be a valid amount with at most 2 decimal places"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// decimalValue lets string tags (required, custom decimal tags) see a decimal
// as its canonical string.
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

func decimalCompare(cmp func(a, b decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		value, ok := fieldDecimal(fl)
		return ok && cmp(value, bound)
	}
}

func isMoney(fl validator.FieldLevel) bool {
	value, ok := fieldDecimal(fl)
	return ok && value.Equal(value.Round(2))
}

func fieldDecimal(fl validator.FieldLevel) (decimal.Decimal, bool) {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(field.String())
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
