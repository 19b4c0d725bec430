package domain

import "errors"

// ErrorCode is the closed taxonomy used by validators, the coordinator,
// and the repositories to classify rejections and faults.
type ErrorCode string

const (
	CodeMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeNullValue            ErrorCode = "NULL_VALUE"
	CodeInvalidDataType      ErrorCode = "INVALID_DATA_TYPE"
	CodeInvalidValue         ErrorCode = "INVALID_VALUE"
	CodeNegativeNumber       ErrorCode = "NEGATIVE_NUMBER"
	CodeZeroValue            ErrorCode = "ZERO_VALUE"
	CodeNotANumber           ErrorCode = "NOT_A_NUMBER"
	CodeInvalidTimestamp     ErrorCode = "INVALID_TIMESTAMP"
	CodeFutureTimestamp      ErrorCode = "FUTURE_TIMESTAMP" // reserved, not currently raised
	CodeDuplicateOrder       ErrorCode = "DUPLICATE_ORDER"  // raised only under DuplicateReject policy
	CodeUnknownPartner       ErrorCode = "UNKNOWN_PARTNER"
	CodeTransformationError  ErrorCode = "TRANSFORMATION_ERROR"
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
)

// Sentinel errors for repository and coordinator control flow.
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrErrorNotFound = errors.New("error event not found")
	ErrNotAMapping   = errors.New("payload is not a mapping")
)

// ErrTransformation is wrapped with context when normalization fails a
// post-condition (spec's TRANSFORMATION_ERROR code).
var ErrTransformation = errors.New("normalization post-condition failed")
