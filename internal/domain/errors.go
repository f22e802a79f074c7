package domain

import "errors"

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
)

// ArgumentError names the input field that failed validation.
// It matches ErrInvalidArgument under errors.Is.
type ArgumentError struct {
	Field string
}

func InvalidArgument(field string) error { return &ArgumentError{Field: field} }

func (e *ArgumentError) Error() string { return "invalid argument: " + e.Field }

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }
