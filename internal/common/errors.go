// Package common defines sentinel errors shared by the client layers of
// spendsync. Callers should match them with errors.Is.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for operations on an unknown local id.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks a failed local write (disk full, corruption, closed db).
	ErrStorage = errors.New("storage error")

	// ErrTransientRemote marks a remote failure worth retrying later
	// (network failure, timeout, server error).
	ErrTransientRemote = errors.New("transient remote error")

	// ErrValidation is returned when mutation input is malformed.
	ErrValidation = errors.New("validation error")

	// ErrNoOwner is returned when an operation needs a signed-in owner.
	ErrNoOwner = errors.New("no owner signed in")

	// ErrUnauthorized is returned for an invalid or expired session token.
	ErrUnauthorized = errors.New("unauthorized")
)

// StorageError wraps a failed local store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage as a match so callers need not know the concrete type.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError wraps err unless it is nil or already classified as
// not-found or validation (those are caller errors, not storage failures).
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
