package domain

import "time"

// ValidOrderPayload is the payload carried by a VALID_ORDER stream event.
type ValidOrderPayload struct {
	OrderEvent OrderEvent
	ReceivedAt time.Time
}

// ErrorOrderPayload is the payload carried by an ERROR_ORDER stream event.
type ErrorOrderPayload struct {
	PartnerID       PartnerID
	OriginalOrderID string // omitted (empty) if not extractable from raw
	ErrorCode       ErrorCode
	Errors          []ErrorDetail
	RawInput        RawPayload
	Timestamp       time.Time
}
