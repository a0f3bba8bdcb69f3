package services

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

// validate checks the `validate` tags of service inputs. Field errors are
// reported under the input's json names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// checkStruct runs the tag rules of s and records every failure in v.
// Confirmation mismatches are reported on the confirmed field.
func checkStruct(v validation, s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Annotate(err, "validating input")
	}
	for _, fe := range fieldErrs {
		field := fe.Field()
		if fe.Tag() == "eqfield" {
			field = strings.TrimSuffix(field, "_confirmation")
		}
		v.add(field, fieldMessage(field, fe.Tag(), fe.Param(), fe.Kind()))
	}
	return nil
}

// checkVar runs rule against a single value reported as field.
func checkVar(v validation, field string, value interface{}, rule string) error {
	err := validate.Var(value, rule)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Annotatef(err, "validating %s", field)
	}
	for _, fe := range fieldErrs {
		v.add(field, fieldMessage(field, fe.Tag(), fe.Param(), fe.Kind()))
	}
	return nil
}

func fieldMessage(field, tag, param string, kind reflect.Kind) string {
	name := strings.ReplaceAll(field, "_", " ")
	switch tag {
	case "required", "required_if":
		return fmt.Sprintf("the %s field is required", name)
	case "email":
		return fmt.Sprintf("the %s must be a valid email address", name)
	case "max", "lte":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("the %s may not be greater than %s characters", name, param)
		case reflect.Slice, reflect.Map:
			return fmt.Sprintf("the %s may not have more than %s items", name, param)
		}
		return fmt.Sprintf("the %s may not be greater than %s", name, param)
	case "min", "gte":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("the %s must be at least %s characters", name, param)
		case reflect.Slice, reflect.Map:
			return fmt.Sprintf("the %s must have at least %s items", name, param)
		}
		return fmt.Sprintf("the %s must be at least %s", name, param)
	case "gt":
		return fmt.Sprintf("the %s must be greater than %s", name, param)
	case "oneof":
		return fmt.Sprintf("the %s must be one of: %s", name, strings.Join(strings.Fields(param), ", "))
	case "datetime":
		return fmt.Sprintf("the %s must be a valid date", name)
	case "eqfield":
		return fmt.Sprintf("the %s confirmation does not match", name)
	case "numeric", "number":
		return fmt.Sprintf("the %s must be a number", name)
	case "boolean":
		return fmt.Sprintf("the %s field must be true or false", name)
	}
	return fmt.Sprintf("the %s is invalid", name)
}
