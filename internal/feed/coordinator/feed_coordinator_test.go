package coordinator_test

import (
	"context"
	"testing"

	"github.com/arkbound/orderfeed/internal/feed/coordinator"
	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
	"github.com/arkbound/orderfeed/internal/feed/sequence"
	"github.com/arkbound/orderfeed/internal/platform/eventbus"
)

func partnerAPayload(orderID string, quantity float64) map[string]any {
	return map[string]any{
		"orderId":           orderID,
		"skuId":             "SKU-1",
		"customerId":        "CUST-1",
		"quantity":          quantity,
		"unitPrice":         float64(20),
		"taxRate":           float64(0.1),
		"transactionTimeMs": float64(1705315800000),
	}
}

func partnerBPayload(txID string) map[string]any {
	return map[string]any{
		"transactionId": txID,
		"itemCode":      "ITM-1",
		"clientId":      "C2",
		"qty":           float64(3),
		"price":         float64(20),
		"tax":           float64(15),
		"purchaseTime":  "2024-01-15T10:30:00.000Z",
	}
}

func newCoordinator(t *testing.T, policy coordinator.DuplicatePolicy) (*coordinator.FeedCoordinator, *eventbus.InMemoryBus, *persistence.InMemoryOrderStore) {
	t.Helper()
	bus := eventbus.New(nil)
	seqs := sequence.NewInMemoryGenerator("", nil, nil, nil)
	orders := persistence.NewInMemoryOrderStore("", nil, nil)
	bus.Subscribe(eventbus.KindValidOrder, coordinator.NewOrderPersistenceSubscriber(orders))
	return coordinator.NewFeedCoordinator(bus, seqs, orders, policy), bus, orders
}

func TestFeedCoordinator_ProcessSingle_AcceptsWellFormedPartnerAPayload(t *testing.T) {
	c, _, orders := newCoordinator(t, coordinator.DuplicateAllow)
	ctx := context.Background()

	result, err := c.ProcessSingle(ctx, domain.PartnerA, partnerAPayload("ORD-1", 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.SequenceNumber != 1 || result.OrderID != "ORD-1" {
		t.Fatalf("unexpected result: %+v", result)
	}

	saved, ok, err := orders.FindByExternalID(ctx, domain.PartnerA, "ORD-1")
	if err != nil || !ok {
		t.Fatalf("expected order to be persisted, ok=%v err=%v", ok, err)
	}
	if saved.GrossAmount != 100 || saved.TaxAmount != 10 || saved.NetAmount != 110 {
		t.Errorf("unexpected amounts: %+v", saved)
	}
}

func TestFeedCoordinator_ProcessSingle_RejectionDoesNotConsumeSequence(t *testing.T) {
	c, _, _ := newCoordinator(t, coordinator.DuplicateAllow)
	ctx := context.Background()

	rejected, err := c.ProcessSingle(ctx, domain.PartnerA, partnerAPayload("ORD-X", -5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Success {
		t.Fatalf("expected rejection, got %+v", rejected)
	}

	accepted, err := c.ProcessSingle(ctx, domain.PartnerA, partnerAPayload("ORD-1", 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.SequenceNumber != 1 {
		t.Fatalf("expected sequence 1 after a rejection, got %d", accepted.SequenceNumber)
	}
}

func TestFeedCoordinator_ProcessSingle_EmitsErrorOrderOnRejection(t *testing.T) {
	c, bus, _ := newCoordinator(t, coordinator.DuplicateAllow)
	ctx := context.Background()

	if _, err := c.ProcessSingle(ctx, domain.PartnerA, partnerAPayload("ORD-X", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := bus.History(eventbus.KindErrorOrder)
	if len(history) != 1 {
		t.Fatalf("expected exactly one error event, got %d", len(history))
	}
	payload, ok := history[0].(domain.ErrorOrderPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", history[0])
	}
	if payload.PartnerID != domain.PartnerA || len(payload.Errors) == 0 {
		t.Errorf("unexpected error payload: %+v", payload)
	}
}

func TestFeedCoordinator_ProcessBatch_PartialFailureKeepsSequenceContiguous(t *testing.T) {
	c, _, _ := newCoordinator(t, coordinator.DuplicateAllow)
	ctx := context.Background()

	batch, err := c.ProcessBatch(ctx, domain.PartnerA, []any{
		partnerAPayload("ORD-1", 5),
		partnerAPayload("ORD-2", 0),
		partnerAPayload("ORD-3", 5),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Total != 3 || batch.Accepted != 2 || batch.Rejected != 1 {
		t.Fatalf("unexpected batch summary: %+v", batch)
	}
	if batch.Results[0].SequenceNumber != 1 || batch.Results[2].SequenceNumber != 2 {
		t.Fatalf("expected contiguous sequence numbers for the accepted subset, got %+v", batch.Results)
	}
}

func TestFeedCoordinator_ProcessSingle_PartnerBConvertsPercentageTaxRate(t *testing.T) {
	c, _, orders := newCoordinator(t, coordinator.DuplicateAllow)
	ctx := context.Background()

	result, err := c.ProcessSingle(ctx, domain.PartnerB, partnerBPayload("TXN-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.SequenceNumber != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	saved, ok, err := orders.FindByExternalID(ctx, domain.PartnerB, "TXN-1")
	if err != nil || !ok {
		t.Fatalf("expected order to be persisted, ok=%v err=%v", ok, err)
	}
	if saved.TaxRate != 0.15 || saved.GrossAmount != 60 || saved.TaxAmount != 9 || saved.NetAmount != 69 {
		t.Errorf("unexpected amounts: %+v", saved)
	}
}

func TestFeedCoordinator_ProcessSingle_DuplicateRejectPolicyBlocksReprocessing(t *testing.T) {
	bus := eventbus.New(nil)
	seqs := sequence.NewInMemoryGenerator("", nil, nil, nil)
	orders := persistence.NewInMemoryOrderStore("", nil, nil)
	bus.Subscribe(eventbus.KindValidOrder, coordinator.NewOrderPersistenceSubscriber(orders))
	c := coordinator.NewFeedCoordinator(bus, seqs, orders, coordinator.DuplicateReject)
	ctx := context.Background()

	if _, err := c.ProcessSingle(ctx, domain.PartnerA, partnerAPayload("ORD-1", 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := c.ProcessSingle(ctx, domain.PartnerA, partnerAPayload("ORD-1", 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected duplicate resubmission to be rejected, got %+v", result)
	}

	stats, err := orders.Statistics(ctx, persistence.OrderFilter{})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.HighestSequence[domain.PartnerA] != 1 {
		t.Errorf("expected duplicate rejection to leave the sequence at 1, got %d", stats.HighestSequence[domain.PartnerA])
	}
}
