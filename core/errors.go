package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError indicates that a referenced resource does not exist.
// It is always raised before any write occurs.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", err.Resource)
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// ConsistencyError indicates an orphaned-data anomaly found while aggregating:
// an ancestor lesson/course referenced by a leaf record cannot be resolved.
// It is logged and the affected recompute skipped; the request still commits.
type ConsistencyError struct {
	Resource string
	ID       string
	Err      error
}

func NewConsistencyError(resource, id string, err error) error {
	return &ConsistencyError{Resource: resource, ID: id, Err: err}
}

func (err ConsistencyError) Error() string {
	return fmt.Sprintf("orphaned %s %q: %v", err.Resource, err.ID, err.Err)
}

func IsConsistencyError(err error) bool {
	_, ok := errors.Cause(err).(*ConsistencyError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
