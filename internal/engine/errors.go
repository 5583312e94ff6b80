package engine

import (
	"errors"
	"fmt"

	"github.com/Bluenode2024/POCBE/internal/engine/auth"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

var (
	ErrNotFound            = repo.ErrNotFound
	ErrConflict            = repo.ErrConflict
	ErrUnauthorized        = auth.ErrUnauthorized
	ErrNoEligibleValidator = errors.New("no eligible validator")
)

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// storeErr leaves domain errors untouched and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrNoEligibleValidator),
		errors.As(err, &se):
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
