package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyContent is returned when a wish has no text after trimming.
	ErrEmptyContent = errors.New("wish content is empty")

	// ErrContentTooLong is returned when a wish exceeds MaxContentLength.
	ErrContentTooLong = fmt.Errorf("wish content exceeds %d characters", MaxContentLength)

	// ErrAuthorTooLong is returned when an author exceeds MaxAuthorLength.
	ErrAuthorTooLong = fmt.Errorf("author exceeds %d characters", MaxAuthorLength)

	// ErrInvalidPosition is returned when a position is outside [0,1).
	ErrInvalidPosition = errors.New("position must be in [0,1)")

	// ErrNotFound is returned by stores when no wish has the requested id.
	ErrNotFound = errors.New("wish not found")

	// ErrSubscriptionClosed is returned by Board.Run when the change feed ends.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// StoreError wraps any failure coming back from a WishStore operation.
type StoreError struct {
	// Op is the store operation that failed (list, insert, update, delete, subscribe).
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err for op. It returns nil when err is nil and leaves
// an existing StoreError untouched.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrContentTooLong) ||
		errors.Is(err, ErrAuthorTooLong) ||
		errors.Is(err, ErrInvalidPosition)
}
