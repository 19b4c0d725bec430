// Package normalize implements C2: pure conversion from a typed,
// validated partner input into the canonical OrderEvent.
package normalize

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/arkbound/orderfeed/internal/feed/domain"
)

// Normalize maps a validated partner input to a canonical OrderEvent,
// assigning it the given sequence number. It is a pure function: no
// clock or randomness reaches it except uuid generation and
// time.Now for processedAt, both of which are side-effect-free from the
// caller's perspective (they never fail).
func Normalize(partner domain.PartnerID, input any, seq int64) (domain.OrderEvent, error) {
	switch in := input.(type) {
	case domain.PartnerAInput:
		return normalizeA(in, seq)
	case domain.PartnerBInput:
		return normalizeB(in, seq)
	default:
		return domain.OrderEvent{}, fmt.Errorf("%w: unsupported input type %T", domain.ErrTransformation, input)
	}
}

func normalizeA(in domain.PartnerAInput, seq int64) (domain.OrderEvent, error) {
	gross, tax, net := computeAmounts(float64(in.Quantity), in.UnitPrice, in.TaxRate)

	event := domain.OrderEvent{
		ID:              uuid.NewString(),
		ExternalOrderID: in.OrderID,
		PartnerID:       domain.PartnerA,
		SequenceNumber:  seq,
		ProductID:       in.SkuID,
		CustomerID:      in.CustomerID,
		Quantity:        in.Quantity,
		UnitPrice:       domain.RoundToCents(in.UnitPrice),
		TaxRate:         in.TaxRate,
		GrossAmount:     gross,
		TaxAmount:       tax,
		NetAmount:       net,
		TransactionTime: time.UnixMilli(in.TransactionTimeMs).UTC(),
		ProcessedAt:     time.Now().UTC(),
		Metadata:        in.Metadata,
	}
	if err := checkPostConditions(event); err != nil {
		return domain.OrderEvent{}, err
	}
	return event, nil
}

func normalizeB(in domain.PartnerBInput, seq int64) (domain.OrderEvent, error) {
	taxRate := in.Tax / 100
	gross, tax, net := computeAmounts(float64(in.Qty), in.Price, taxRate)

	txTime, err := time.Parse(time.RFC3339, in.PurchaseTime)
	if err != nil {
		txTime, err = time.Parse(time.RFC3339Nano, in.PurchaseTime)
	}
	if err != nil {
		return domain.OrderEvent{}, fmt.Errorf("%w: purchaseTime %q not parseable: %v", domain.ErrTransformation, in.PurchaseTime, err)
	}

	var metadata map[string]any
	if in.Notes != "" {
		metadata = map[string]any{"notes": in.Notes}
	}

	event := domain.OrderEvent{
		ID:              uuid.NewString(),
		ExternalOrderID: in.TransactionID,
		PartnerID:       domain.PartnerB,
		SequenceNumber:  seq,
		ProductID:       in.ItemCode,
		CustomerID:      in.ClientID,
		Quantity:        in.Qty,
		UnitPrice:       domain.RoundToCents(in.Price),
		TaxRate:         taxRate,
		GrossAmount:     gross,
		TaxAmount:       tax,
		NetAmount:       net,
		TransactionTime: txTime.UTC(),
		ProcessedAt:     time.Now().UTC(),
		Metadata:        metadata,
	}
	if err := checkPostConditions(event); err != nil {
		return domain.OrderEvent{}, err
	}
	return event, nil
}

// computeAmounts implements gross = q*p, tax = gross*rate, net = gross+tax,
// each rounded to cents independently (rounding the intermediate before
// the next multiplication, per spec's arithmetic order).
func computeAmounts(quantity, unitPrice, taxRate float64) (gross, tax, net float64) {
	gross = domain.RoundToCents(quantity * unitPrice)
	tax = domain.RoundToCents(gross * taxRate)
	net = domain.RoundToCents(gross + tax)
	return gross, tax, net
}

// checkPostConditions guards the arithmetic invariants and rejects
// non-finite results, which would otherwise poison stored aggregates.
func checkPostConditions(e domain.OrderEvent) error {
	for _, v := range []float64{e.GrossAmount, e.TaxAmount, e.NetAmount} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite amount computed", domain.ErrTransformation)
		}
	}
	if e.NetAmount < e.GrossAmount {
		return fmt.Errorf("%w: netAmount %.2f below grossAmount %.2f", domain.ErrTransformation, e.NetAmount, e.GrossAmount)
	}
	return nil
}
