package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/platform/eventbus"
	"github.com/arkbound/orderfeed/internal/platform/metrics"
)

func TestSubscriber_CountsIngestedOrderByPartner(t *testing.T) {
	registry := metrics.NewRegistry()
	sub := metrics.NewSubscriber(registry)

	err := sub.Handle(context.Background(), eventbus.KindValidOrder, domain.ValidOrderPayload{
		OrderEvent: domain.OrderEvent{PartnerID: domain.PartnerA, SequenceNumber: 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := testutil.ToFloat64(registry.OrdersIngested.WithLabelValues(string(domain.PartnerA)))
	if got != 1 {
		t.Fatalf("expected 1 ingested order counted, got %v", got)
	}
}

func TestSubscriber_CountsRejectedOrderByPartnerAndCode(t *testing.T) {
	registry := metrics.NewRegistry()
	sub := metrics.NewSubscriber(registry)

	err := sub.Handle(context.Background(), eventbus.KindErrorOrder, domain.ErrorOrderPayload{
		PartnerID: domain.PartnerB,
		ErrorCode: domain.CodeInvalidValue,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := testutil.ToFloat64(registry.OrdersRejected.WithLabelValues(string(domain.PartnerB), string(domain.CodeInvalidValue)))
	if got != 1 {
		t.Fatalf("expected 1 rejected order counted, got %v", got)
	}
}
