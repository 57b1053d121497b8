package quant

import (
	"fmt"
)

// QuantizationErrorCode represents specific quantization error types
type QuantizationErrorCode int

const (
	ErrQuantUnknown QuantizationErrorCode = iota
	ErrQuantConfigInvalid
	ErrQuantDimensionMismatch
	ErrQuantCodeSizeMismatch
	ErrQuantRangeInvalid
)

func (c QuantizationErrorCode) String() string {
	switch c {
	case ErrQuantConfigInvalid:
		return "config_invalid"
	case ErrQuantDimensionMismatch:
		return "dimension_mismatch"
	case ErrQuantCodeSizeMismatch:
		return "code_size_mismatch"
	case ErrQuantRangeInvalid:
		return "range_invalid"
	default:
		return "unknown"
	}
}

// QuantizationError represents a quantization-specific error
type QuantizationError struct {
	Code      QuantizationErrorCode  `json:"code"`
	Message   string                 `json:"message"`
	Operation string                 `json:"operation"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"cause,omitempty"`
}

func (qe *QuantizationError) Error() string {
	if qe.Cause != nil {
		return fmt.Sprintf("quantization error in %s: %s (caused by: %v)",
			qe.Operation, qe.Message, qe.Cause)
	}
	return fmt.Sprintf("quantization error in %s: %s", qe.Operation, qe.Message)
}

// Unwrap returns the underlying cause error
func (qe *QuantizationError) Unwrap() error {
	return qe.Cause
}

// NewQuantizationError creates a new quantization error
func NewQuantizationError(code QuantizationErrorCode, operation, message string) *QuantizationError {
	return &QuantizationError{
		Code:      code,
		Message:   message,
		Operation: operation,
	}
}

// WithCause adds a cause error
func (qe *QuantizationError) WithCause(cause error) *QuantizationError {
	qe.Cause = cause
	return qe
}

// WithMetadata adds metadata to the error
func (qe *QuantizationError) WithMetadata(key string, value interface{}) *QuantizationError {
	if qe.Metadata == nil {
		qe.Metadata = make(map[string]interface{})
	}
	qe.Metadata[key] = value
	return qe
}

func dimensionMismatch(operation string, expected, got int) *QuantizationError {
	return NewQuantizationError(ErrQuantDimensionMismatch, operation,
		fmt.Sprintf("expected dimension %d, got %d", expected, got)).
		WithMetadata("expected", expected).
		WithMetadata("got", got)
}
