package consult

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotAuthorized  = errors.New("caller is not the principal of the advisor")
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotCommitted reports a mutation whose writes could not be flushed.
	ErrNotCommitted = errors.New("write not committed")
)

// NotFoundError names the collection and id that failed to resolve.
type NotFoundError struct {
	Entity string
	ID     uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id=%d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(entity string, id uint64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError carries every violated rule of one payload.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + strings.Join(e.Errors, " ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidPayload }

// Violations returns the messages of err if it is a validation failure.
func Violations(err error) []string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Errors
	}
	return nil
}

func notAuthorized(advisorID uint64) error {
	return fmt.Errorf("%w (advisor id=%d)", ErrNotAuthorized, advisorID)
}
