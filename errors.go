package shardkvx

import (
	"errors"
	"fmt"
)

var (
	// ErrPlacementUnavailable indicates the placement service could not
	// answer, typically because it has no quorum or leader.
	ErrPlacementUnavailable = errors.New("placement service unavailable")

	// ErrNoLeader indicates a region currently has no known leader.
	ErrNoLeader = errors.New("region has no leader")

	// ErrRetriesExhausted indicates an operation kept failing with retriable
	// errors until its retry budget ran out.
	ErrRetriesExhausted = errors.New("retries exhausted")

	ErrKeyNotFound = errors.New("key not found")
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrClosed          = errors.New("closed")
)

type contextualError struct {
	Message string
	Cause   error
}

func (e contextualError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Cause)
}

func (e contextualError) Unwrap() error {
	return e.Cause
}

type retrierDeadlineError struct {
	Cause      error
	RetryCause error
}

func (e retrierDeadlineError) Error() string {
	if e.RetryCause != nil {
		return fmt.Sprintf("timed out during retrying: %s (retry cause: %s)", e.Cause, e.RetryCause)
	} else {
		return fmt.Sprintf("timed out during retrying: %s", e.Cause)
	}
}

func (e retrierDeadlineError) Unwrap() error {
	return e.Cause
}

type retriesExhaustedError struct {
	Attempts uint32
	Cause    error
}

func (e retriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %s", e.Attempts, e.Cause)
}

func (e retriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Cause}
}

type noLeaderError struct {
	RegionID uint64
}

func (e noLeaderError) Error() string {
	return fmt.Sprintf("region %d has no leader", e.RegionID)
}

func (e noLeaderError) Unwrap() error {
	return ErrNoLeader
}

type placementError struct {
	Op    string
	Cause error
}

func (e placementError) Error() string {
	return fmt.Sprintf("placement %s failed: %s", e.Op, e.Cause)
}

func (e placementError) Unwrap() []error {
	return []error{ErrPlacementUnavailable, e.Cause}
}

type illegalStateError struct {
	Message string
}

func (e illegalStateError) Error() string {
	return fmt.Sprintf("illegal state: %s", e.Message)
}

type invalidArgumentError struct {
	Message string
}

func (e invalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func (e invalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}
