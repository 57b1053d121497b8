package quickhnsw

import (
	"errors"
	"fmt"

	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
)

// Core errors. Test with errors.Is.
var (
	ErrInvalidArgument   = hnsw.ErrInvalidArgument
	ErrCapacityExceeded  = hnsw.ErrCapacityExceeded
	ErrAllocation        = hnsw.ErrAllocation
	ErrRebuildInProgress = hnsw.ErrRebuildInProgress
	ErrFormat            = hnsw.ErrFormat
	ErrCorrupt           = hnsw.ErrCorrupt
	ErrClosed            = hnsw.ErrClosed
)

// ErrorCode represents structured error codes
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodeInvalidArgument
	CodeCapacityExceeded
	CodeAllocation
	CodeRebuildInProgress
	CodeCorrupt
	CodeClosed
)

func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeCapacityExceeded:
		return "capacity_exceeded"
	case CodeAllocation:
		return "allocation"
	case CodeRebuildInProgress:
		return "rebuild_in_progress"
	case CodeCorrupt:
		return "corrupt"
	case CodeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is returned by every Index method that fails
type Error struct {
	Code ErrorCode `json:"code"`
	Op   string    `json:"op"`
	Err  error     `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("quickhnsw %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same call may succeed later unchanged
func (e *Error) Retryable() bool {
	return e.Code == CodeRebuildInProgress
}

// CodeOf returns the code carried by err, or CodeUnknown
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return classify(err)
}

func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrAllocation):
		return CodeAllocation
	case errors.Is(err, ErrRebuildInProgress):
		return CodeRebuildInProgress
	case errors.Is(err, ErrFormat):
		return CodeCorrupt
	case errors.Is(err, ErrClosed):
		return CodeClosed
	default:
		return CodeUnknown
	}
}

// wrap attaches the operation and code; nil stays nil
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: classify(err), Op: op, Err: err}
}
