package domain

import "time"

// ErrorDetail describes a single rejected field.
type ErrorDetail struct {
	Field         string
	Message       string
	ReceivedValue any
	ExpectedType  string
}

// ErrorEvent is produced whenever a validator rejects a payload, or when
// an internal fault occurs (INTERNAL_ERROR). It is immutable once built.
type ErrorEvent struct {
	ID              string
	PartnerID       PartnerID
	ExternalOrderID string // extracted best-effort; empty if not parseable
	ErrorCode       ErrorCode
	Message         string
	Details         []ErrorDetail
	OriginalPayload RawPayload
	Timestamp       time.Time
}
