package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrVersionConflict = errors.New("order was modified concurrently")

	// -- Constants (External Systems) --
	PgUniqueViolation     = "23505"
	PgForeignKeyViolation = "23503"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type InvalidTransitionError struct {
	From         Status
	To           Status
	DeliveryType DeliveryType
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move %s order from %s to %s", e.DeliveryType, e.From, e.To)
}

// ConflictError reports a write against a stale version. Callers re-fetch and retry.
type ConflictError struct {
	OrderID  string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %s: expected version %d, current version is %d", e.OrderID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
