package domain

import "time"

// OrderEvent is the canonical order record produced by the normalizer.
// It is never mutated after construction (I4/I5): a value exists in a
// repository only because it was published on the valid-order stream
// exactly once.
type OrderEvent struct {
	ID               string
	ExternalOrderID  string
	PartnerID        PartnerID
	SequenceNumber   int64
	ProductID        string
	CustomerID       string
	Quantity         int64
	UnitPrice        float64
	TaxRate          float64
	GrossAmount      float64
	TaxAmount        float64
	NetAmount        float64
	TransactionTime  time.Time
	ProcessedAt      time.Time
	Metadata         map[string]any
}

// TransactionTimeRFC3339Milli formats TransactionTime the way the spec
// requires stored records to read: UTC, millisecond precision, "Z" suffix.
func (o OrderEvent) TransactionTimeRFC3339Milli() string {
	return o.TransactionTime.UTC().Format("2006-01-02T15:04:05.000Z")
}
