package services

import (
	"sort"
	"strings"

	"github.com/juju/errors"
)

// ErrFailedPrecondition marks operations blocked by the current state of an
// entity, such as deleting an upcoming confirmed booking.
const ErrFailedPrecondition = errors.ConstError("failed precondition")

// ValidationError carries user-correctable problems keyed by input field.
// It satisfies errors.Is(err, errors.NotValid).
type ValidationError struct {
	Fields map[string]string
}

func invalidField(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return errors.NotValid
}

// validation accumulates field errors while checking an input.
type validation map[string]string

func (v validation) add(field, message string) {
	if _, seen := v[field]; !seen {
		v[field] = message
	}
}

func (v validation) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Fields: v}
}

func failedPrecondition(format string, args ...interface{}) error {
	return errors.WithType(errors.Errorf(format, args...), ErrFailedPrecondition)
}

func (v validation) has(field string) bool {
	_, ok := v[field]
	return ok
}
