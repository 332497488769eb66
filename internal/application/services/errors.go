package services

import (
	"errors"
	"fmt"
)

var (
	ErrExitHashNotSubmitted          = errors.New("exit hash was not submitted")
	ErrExitHashAlreadySubmitted      = errors.New("exit hash already submitted")
	ErrRequestsAlreadyDelivered      = errors.New("requests already delivered")
	ErrRequestsNotDelivered          = errors.New("requests were not delivered")
	ErrExitRequestsLimit             = errors.New("exit requests limit reached")
	ErrNoExitDataIndexes             = errors.New("no exit data indexes")
	ErrExitDataIndexOutOfRange       = errors.New("exit data index out of range")
	ErrInvalidExitDataIndexSortOrder = errors.New("exit data indexes are not strictly increasing")
	ErrUnknownLimiter                = errors.New("unknown limiter")
	ErrExitRequestWitnessMismatch    = errors.New("witness does not match exit request")
)

// ExitRequestsLimitError is returned by delivery when entries remain but the
// limiter has nothing available.
type ExitRequestsLimitError struct {
	Requested uint64
	Available uint64
}

func (e *ExitRequestsLimitError) Error() string {
	return fmt.Sprintf("exit requests limit reached: %d remaining, %d available", e.Requested, e.Available)
}

func (e *ExitRequestsLimitError) Is(target error) bool { return target == ErrExitRequestsLimit }

// ExitDataIndexError carries the offending position of a trigger request.
type ExitDataIndexError struct {
	Index uint64
	Limit uint64
	Cause error
}

func (e *ExitDataIndexError) Error() string {
	return fmt.Sprintf("%v: index %d, limit %d", e.Cause, e.Index, e.Limit)
}

func (e *ExitDataIndexError) Unwrap() error { return e.Cause }
