package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for categorizing storage failures.
var (
	// ErrConnectionFailed indicates a failure to connect to the database.
	ErrConnectionFailed = errors.New("storage: connection failed")

	// ErrQueryFailed indicates a query execution failure.
	ErrQueryFailed = errors.New("storage: query failed")

	// ErrBatchInsertFailed indicates a batch insert failure.
	ErrBatchInsertFailed = errors.New("storage: batch insert failed")

	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("storage: not found")

	// ErrTimeout indicates an operation timeout.
	ErrTimeout = errors.New("storage: operation timeout")

	// ErrInvalidData indicates invalid data was provided.
	ErrInvalidData = errors.New("storage: invalid data")

	// ErrClosed indicates the store is closed.
	ErrClosed = errors.New("storage: closed")
)

// StorageError wraps storage errors with additional context.
type StorageError struct {
	Op    string // Operation that failed (e.g., "Insert", "Query", "Connect")
	Table string // Table involved, if applicable
	Err   error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage.%s(%s): %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(op, table string, err error) *StorageError {
	return &StorageError{Op: op, Table: table, Err: err}
}

// IsConnectionError checks if the error is a connection error.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable checks if the error is worth retrying.
func IsRetryable(err error) bool {
	return IsConnectionError(err) || errors.Is(err, ErrTimeout)
}

// WrapConnectionError wraps an error as a connection error.
func WrapConnectionError(op string, err error) error {
	return &StorageError{
		Op:  op,
		Err: fmt.Errorf("%w: %v", ErrConnectionFailed, err),
	}
}

// WrapQueryError wraps an error as a query error.
func WrapQueryError(op, table string, err error) error {
	return &StorageError{
		Op:    op,
		Table: table,
		Err:   fmt.Errorf("%w: %v", ErrQueryFailed, err),
	}
}

// WrapNotFoundError wraps an error as a not found error.
func WrapNotFoundError(op, table, id string) error {
	return &StorageError{
		Op:    op,
		Table: table,
		Err:   fmt.Errorf("%w: id=%s", ErrNotFound, id),
	}
}
