package kvrpcx

import (
	"errors"
	"fmt"
)

// ErrRegionError is matched by every routing error returned by a store. A
// request failing with it should be routed again using fresh placement
// information.
var ErrRegionError = errors.New("region error")

var (
	ErrNotLeader      = errors.New("not leader")
	ErrRegionNotFound = errors.New("region not found")
	ErrKeyNotInRegion = errors.New("key not in region")
	ErrEpochNotMatch  = errors.New("epoch not match")
	ErrServerIsBusy   = errors.New("server is busy")
	ErrStaleCommand   = errors.New("stale command")
	ErrStoreNotMatch  = errors.New("store not match")
)

var (
	ErrKeyIsLocked = errors.New("key is locked")
	ErrRetryable   = errors.New("retryable key error")
	ErrAbort       = errors.New("transaction aborted")
)

type NotLeader struct {
	RegionID uint64 `json:"region_id"`
	Leader   *Peer  `json:"leader,omitempty"`
}

type RegionNotFound struct {
	RegionID uint64 `json:"region_id"`
}

type KeyNotInRegion struct {
	Key      []byte `json:"key"`
	RegionID uint64 `json:"region_id"`
	StartKey []byte `json:"start_key"`
	EndKey   []byte `json:"end_key"`
}

type EpochNotMatch struct {
	CurrentRegions []*Region `json:"current_regions,omitempty"`
}

type ServerIsBusy struct {
	Reason string `json:"reason"`
}

type StaleCommand struct{}

type StoreNotMatch struct {
	RequestStoreID uint64 `json:"request_store_id"`
	ActualStoreID  uint64 `json:"actual_store_id"`
}

// RegionError is the wire form of a routing failure. At most one of the
// detail fields is set.
type RegionError struct {
	Message        string          `json:"message"`
	NotLeader      *NotLeader      `json:"not_leader,omitempty"`
	RegionNotFound *RegionNotFound `json:"region_not_found,omitempty"`
	KeyNotInRegion *KeyNotInRegion `json:"key_not_in_region,omitempty"`
	EpochNotMatch  *EpochNotMatch  `json:"epoch_not_match,omitempty"`
	ServerIsBusy   *ServerIsBusy   `json:"server_is_busy,omitempty"`
	StaleCommand   *StaleCommand   `json:"stale_command,omitempty"`
	StoreNotMatch  *StoreNotMatch  `json:"store_not_match,omitempty"`
}

func (e *RegionError) cause() error {
	switch {
	case e.NotLeader != nil:
		return ErrNotLeader
	case e.RegionNotFound != nil:
		return ErrRegionNotFound
	case e.KeyNotInRegion != nil:
		return ErrKeyNotInRegion
	case e.EpochNotMatch != nil:
		return ErrEpochNotMatch
	case e.ServerIsBusy != nil:
		return ErrServerIsBusy
	case e.StaleCommand != nil:
		return ErrStaleCommand
	case e.StoreNotMatch != nil:
		return ErrStoreNotMatch
	}
	return nil
}

// ServerRegionError is returned when a store rejects a request because of
// its routing. It matches ErrRegionError and the sentinel of the specific
// failure, if one is known.
type ServerRegionError struct {
	Cause  error
	Detail *RegionError
}

func NewServerRegionError(detail *RegionError) *ServerRegionError {
	return &ServerRegionError{
		Cause:  detail.cause(),
		Detail: detail,
	}
}

func (e *ServerRegionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("region error: %s", e.Detail.Message)
	}
	if e.Detail.Message == "" {
		return fmt.Sprintf("region error: %s", e.Cause)
	}
	return fmt.Sprintf("region error: %s (%s)", e.Cause, e.Detail.Message)
}

func (e *ServerRegionError) Is(target error) bool {
	return target == ErrRegionError
}

func (e *ServerRegionError) Unwrap() error {
	return e.Cause
}

// KeyError is the wire form of a per-key failure. A KeyError with Locked
// set reports a lock held by another transaction.
type KeyError struct {
	Locked    *LockInfo `json:"locked,omitempty"`
	Retryable string    `json:"retryable,omitempty"`
	Abort     string    `json:"abort,omitempty"`
}

// ServerKeyError is returned for key errors which are not consumed as
// locks by the caller.
type ServerKeyError struct {
	Detail *KeyError
}

func (e *ServerKeyError) Error() string {
	switch {
	case e.Detail.Locked != nil:
		return fmt.Sprintf("key error: key is locked (lock version %d)", e.Detail.Locked.LockVersion)
	case e.Detail.Retryable != "":
		return fmt.Sprintf("key error: retryable: %s", e.Detail.Retryable)
	case e.Detail.Abort != "":
		return fmt.Sprintf("key error: abort: %s", e.Detail.Abort)
	}
	return "key error: unknown"
}

func (e *ServerKeyError) Unwrap() error {
	switch {
	case e.Detail.Locked != nil:
		return ErrKeyIsLocked
	case e.Detail.Retryable != "":
		return ErrRetryable
	case e.Detail.Abort != "":
		return ErrAbort
	}
	return nil
}
