package account

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("account not found")
	ErrValidation       = errors.New("validation failed")
	ErrSelfDeactivation = errors.New("you cannot deactivate your own account")
)

// itemError tags an error with a stable code for bulk result reporting.
type itemError struct {
	code string
	err  error
}

func (e *itemError) Error() string { return e.err.Error() }
func (e *itemError) Unwrap() error { return e.err }
func (e *itemError) Code() string  { return e.code }

func coded(err error) error {
	if err == nil {
		return nil
	}
	code := "processing"
	switch {
	case errors.Is(err, ErrNotFound):
		code = "not-found"
	case errors.Is(err, ErrValidation):
		code = "invalid"
	}
	return &itemError{code: code, err: err}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
