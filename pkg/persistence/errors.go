// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrInvalidKey indicates a namespace or key that a backend cannot store.
	ErrInvalidKey = errors.New("invalid key")
)

// KVError wraps storage errors with the operation and location that failed.
type KVError struct {
	Op        string // Operation being performed (e.g., "Load", "Save", "Delete")
	Namespace string
	Key       string
	Err       error
}

func (e *KVError) Error() string {
	return fmt.Sprintf("%s operation failed for %s/%s: %v", e.Op, e.Namespace, e.Key, e.Err)
}

func (e *KVError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for storage errors.
func (e *KVError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewKVError creates a new storage error with context.
func NewKVError(op, namespace, key string, err error) *KVError {
	return &KVError{
		Op:        op,
		Namespace: namespace,
		Key:       key,
		Err:       err,
	}
}

// IsInvalidKey checks if an error was caused by an unusable namespace or key.
func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}
