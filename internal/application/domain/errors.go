package domain

import (
	"errors"
	"fmt"
)

// ErrRootNotFound means no trusted beacon block root is available for a timestamp.
var ErrRootNotFound = errors.New("beacon block root not found")

// RootNotFoundError is returned by root oracles and by the proof verifier when the
// oracle call fails or returns nothing.
type RootNotFoundError struct {
	Timestamp uint64
	Cause     error
}

func (e *RootNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("beacon block root not found for timestamp %d: %v", e.Timestamp, e.Cause)
	}
	return fmt.Sprintf("beacon block root not found for timestamp %d", e.Timestamp)
}

func (e *RootNotFoundError) Is(target error) bool { return target == ErrRootNotFound }

func (e *RootNotFoundError) Unwrap() error { return e.Cause }
