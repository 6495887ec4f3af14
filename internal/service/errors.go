package service

import (
	"errors"
	"fmt"

	"github.com/hesampakdaman/messaging/internal/repository"
)

var (
	// ErrValidation marks a structurally invalid argument, rejected before
	// the store is touched.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a lookup of an unknown message.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a failure that left nothing committed; the whole
	// operation may be retried. Retrying Publish may store a second message.
	ErrTransient = errors.New("transient storage failure")
	// ErrFatal marks a store that cannot serve requests at all.
	ErrFatal = errors.New("store unavailable")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// classify maps store errors onto the service taxonomy, keeping the cause
// in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTransient), errors.Is(err, ErrFatal):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrStoreUnavailable):
		return fmt.Errorf("%w: %w", ErrFatal, err)
	case repository.IsTransient(err):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	default:
		return err
	}
}
