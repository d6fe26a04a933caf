package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an id has no record in the active backend.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("record %s not found", e.ID)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// ValidationError is returned when caller-supplied fields fail a structural
// check. It is surfaced directly and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// AdapterError wraps any transport, credential, or schema failure raised by
// the durable backend adapter. The adapter never decides to fall back; that
// decision belongs to the facade.
type AdapterError struct {
	Op  string
	Err error
}

func (e AdapterError) Error() string {
	return fmt.Sprintf("durable backend %s: %v", e.Op, e.Err)
}

func (e AdapterError) Unwrap() error { return e.Err }

// IsAdapterError reports whether err is an AdapterError.
func IsAdapterError(err error) bool {
	var ae AdapterError
	return errors.As(err, &ae)
}
