// Package coordinator implements C7 (validate → sequence → normalize →
// publish) and C8 (the read-only query façade), the only components
// that see the full pipeline end to end.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/normalize"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
	"github.com/arkbound/orderfeed/internal/feed/sequence"
	"github.com/arkbound/orderfeed/internal/feed/validation"
	"github.com/arkbound/orderfeed/internal/platform/eventbus"
)

// DuplicatePolicy governs what happens when a (partnerId, externalOrderId)
// pair has already been accepted.
type DuplicatePolicy int

const (
	// DuplicateAllow reprocesses the payload as usual: a new record is
	// created, sequenced, and published, and the external-id index moves
	// to point at it. This matches the spec's documented current
	// behavior and is the default.
	DuplicateAllow DuplicatePolicy = iota
	// DuplicateReject emits DUPLICATE_ORDER as an ErrorEvent without
	// consuming a sequence number.
	DuplicateReject
)

// ProcessingResult is the outcome of ProcessSingle.
type ProcessingResult struct {
	Success        bool
	PartnerID      domain.PartnerID
	OrderID        string
	SequenceNumber int64
	Errors         []string
}

// BatchResult is the outcome of ProcessBatch.
type BatchResult struct {
	Total    int
	Accepted int
	Rejected int
	Results  []ProcessingResult
}

// FeedCoordinator orchestrates C1 through C4 for one or many raw
// payloads. It never touches a repository directly (I4/I5): the order
// repository learns about an accepted order only by subscribing to the
// valid-order stream.
type FeedCoordinator struct {
	bus       eventbus.Bus
	sequences sequence.Generator
	orders    persistence.OrderRepository // read-only lookup, for DuplicateReject
	policy    DuplicatePolicy
}

// NewFeedCoordinator wires the coordinator. orders may be nil when
// policy is DuplicateAllow, since no lookup is needed in that mode.
func NewFeedCoordinator(bus eventbus.Bus, sequences sequence.Generator, orders persistence.OrderRepository, policy DuplicatePolicy) *FeedCoordinator {
	return &FeedCoordinator{bus: bus, sequences: sequences, orders: orders, policy: policy}
}

// ProcessSingle runs one raw payload through validate → sequence →
// normalize → publish, per spec §4.7.
func (c *FeedCoordinator) ProcessSingle(ctx context.Context, partner domain.PartnerID, raw any) (ProcessingResult, error) {
	validator, err := validation.For(partner)
	if err != nil {
		return c.rejectUnknownPartner(ctx, partner, raw), nil
	}

	result := validator.Validate(raw)
	if !result.OK() {
		return c.reject(ctx, partner, raw, result.Details(), result.PrimaryCode()), nil
	}

	orderID := externalOrderID(result.Input)
	if c.policy == DuplicateReject && c.orders != nil {
		exists, err := c.orders.ExistsByExternalID(ctx, partner, orderID)
		if err != nil {
			return ProcessingResult{}, fmt.Errorf("checking duplicate: %w", err)
		}
		if exists {
			return c.reject(ctx, partner, raw, []domain.ErrorDetail{{
				Field:   "externalOrderId",
				Message: fmt.Sprintf("order %q for partner %s was already accepted", orderID, partner),
			}}, domain.CodeDuplicateOrder), nil
		}
	}

	seq, err := c.sequences.Next(ctx, partner)
	if err != nil {
		return ProcessingResult{}, fmt.Errorf("assigning sequence number: %w", err)
	}

	event, err := normalize.Normalize(partner, result.Input, seq)
	if err != nil {
		return ProcessingResult{}, fmt.Errorf("normalizing accepted payload: %w", err)
	}

	c.bus.Emit(ctx, eventbus.KindValidOrder, domain.ValidOrderPayload{
		OrderEvent: event,
		ReceivedAt: time.Now().UTC(),
	})

	return ProcessingResult{
		Success:        true,
		PartnerID:      partner,
		OrderID:        event.ExternalOrderID,
		SequenceNumber: seq,
	}, nil
}

// ProcessBatch applies ProcessSingle element-wise, in order. Partial
// failure does not abort the batch; accepted elements retain contiguous
// per-partner sequence numbers.
func (c *FeedCoordinator) ProcessBatch(ctx context.Context, partner domain.PartnerID, raws []any) (BatchResult, error) {
	batch := BatchResult{Total: len(raws), Results: make([]ProcessingResult, 0, len(raws))}
	for _, raw := range raws {
		result, err := c.ProcessSingle(ctx, partner, raw)
		if err != nil {
			return BatchResult{}, err
		}
		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.Accepted++
		} else {
			batch.Rejected++
		}
	}
	return batch, nil
}

func (c *FeedCoordinator) reject(ctx context.Context, partner domain.PartnerID, raw any, details []domain.ErrorDetail, code domain.ErrorCode) ProcessingResult {
	messages := make([]string, len(details))
	for i, d := range details {
		messages[i] = fmt.Sprintf("%s: %s", d.Field, d.Message)
	}

	c.bus.Emit(ctx, eventbus.KindErrorOrder, domain.ErrorOrderPayload{
		PartnerID:       partner,
		OriginalOrderID: bestEffortOrderID(raw),
		ErrorCode:       code,
		Errors:          details,
		RawInput:        toRawPayload(raw),
		Timestamp:       time.Now().UTC(),
	})

	return ProcessingResult{
		Success:   false,
		PartnerID: partner,
		OrderID:   bestEffortOrderID(raw),
		Errors:    messages,
	}
}

func (c *FeedCoordinator) rejectUnknownPartner(ctx context.Context, partner domain.PartnerID, raw any) ProcessingResult {
	return c.reject(ctx, partner, raw, []domain.ErrorDetail{{
		Field:   "partnerId",
		Message: fmt.Sprintf("unknown partner %q", partner),
	}}, domain.CodeUnknownPartner)
}

// bestEffortOrderID extracts orderId/transactionId from a raw payload
// without validating it, for the ErrorOrderPayload's originalOrderId.
func bestEffortOrderID(raw any) string {
	m, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"orderId", "transactionId"} {
		if v, ok := m[key].(string); ok {
			return v
		}
	}
	return ""
}

func toRawPayload(raw any) domain.RawPayload {
	if m, ok := raw.(map[string]any); ok {
		return domain.RawPayload(m)
	}
	return nil
}

func externalOrderID(input any) string {
	switch in := input.(type) {
	case domain.PartnerAInput:
		return in.OrderID
	case domain.PartnerBInput:
		return in.TransactionID
	default:
		return ""
	}
}
