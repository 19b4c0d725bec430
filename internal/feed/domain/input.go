package domain

// RawPayload is the opaque decoded-JSON value handed to a Validator.
type RawPayload map[string]any

// PartnerAInput is the validated, typed shape of a Partner A payload.
type PartnerAInput struct {
	OrderID           string
	SkuID             string
	CustomerID        string
	Quantity          int64
	UnitPrice         float64
	TaxRate           float64
	TransactionTimeMs int64
	Metadata          map[string]any
}

// PartnerBInput is the validated, typed shape of a Partner B payload.
type PartnerBInput struct {
	TransactionID string
	ItemCode      string
	ClientID      string
	Qty           int64
	Price         float64
	Tax           float64 // percentage, 0..100
	PurchaseTime  string  // ISO-8601, validated parseable
	Notes         string
}
