package hnsw

import "errors"

var (
	// ErrInvalidArgument reports a bad dimension, size or parameter.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCapacityExceeded is returned by Insert once MaxElements nodes exist.
	ErrCapacityExceeded = errors.New("index capacity exceeded")

	// ErrAllocation reports a request whose memory footprint cannot be represented.
	ErrAllocation = errors.New("allocation failure")

	// ErrRebuildInProgress is returned when a rebuild is started while another runs.
	ErrRebuildInProgress = errors.New("rebuild already in progress")

	// ErrFormat reports a persisted index that cannot be decoded.
	ErrFormat = errors.New("invalid index format")

	// ErrCorrupt is an alias of ErrFormat for truncated or inconsistent files.
	ErrCorrupt = ErrFormat

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index is closed")
)
