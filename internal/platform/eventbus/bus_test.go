package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/arkbound/orderfeed/internal/platform/eventbus"
)

func TestInMemoryBus_DeliversInSubscriptionOrder(t *testing.T) {
	b := eventbus.New(nil)
	var order []int

	b.Subscribe(eventbus.KindValidOrder, eventbus.SubscriberFunc(func(ctx context.Context, kind eventbus.Kind, payload any) error {
		order = append(order, 1)
		return nil
	}))
	b.Subscribe(eventbus.KindValidOrder, eventbus.SubscriberFunc(func(ctx context.Context, kind eventbus.Kind, payload any) error {
		order = append(order, 2)
		return nil
	}))

	b.Emit(context.Background(), eventbus.KindValidOrder, "payload")

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected delivery in subscription order, got %v", order)
	}
}

func TestInMemoryBus_HistoryRecordsEveryEmit(t *testing.T) {
	b := eventbus.New(nil)
	b.Emit(context.Background(), eventbus.KindValidOrder, "a")
	b.Emit(context.Background(), eventbus.KindValidOrder, "b")

	hist := b.History(eventbus.KindValidOrder)
	if len(hist) != 2 || hist[0] != "a" || hist[1] != "b" {
		t.Fatalf("unexpected history: %v", hist)
	}
}

func TestInMemoryBus_SubscriberFailureIsReportedOnErrorStream(t *testing.T) {
	b := eventbus.New(nil)
	b.Subscribe(eventbus.KindValidOrder, eventbus.SubscriberFunc(func(ctx context.Context, kind eventbus.Kind, payload any) error {
		return errors.New("boom")
	}))

	b.Emit(context.Background(), eventbus.KindValidOrder, "payload")

	errHist := b.History(eventbus.KindErrorOrder)
	if len(errHist) != 1 {
		t.Fatalf("expected one reported fault, got %d", len(errHist))
	}
}

func TestInMemoryBus_ErrorStreamFailureDoesNotRecurse(t *testing.T) {
	b := eventbus.New(nil)
	b.Subscribe(eventbus.KindErrorOrder, eventbus.SubscriberFunc(func(ctx context.Context, kind eventbus.Kind, payload any) error {
		return errors.New("boom")
	}))

	b.Emit(context.Background(), eventbus.KindErrorOrder, "payload")

	// A failing error-stream subscriber must not spawn another fault
	// report on the same stream.
	if len(b.History(eventbus.KindErrorOrder)) != 1 {
		t.Fatalf("expected no feedback loop, got history %v", b.History(eventbus.KindErrorOrder))
	}
}

func TestInMemoryBus_UnsubscribeStopsFurtherDelivery(t *testing.T) {
	b := eventbus.New(nil)
	calls := 0
	sub := &countingSubscriber{count: &calls}

	b.Subscribe(eventbus.KindValidOrder, sub)
	b.Emit(context.Background(), eventbus.KindValidOrder, "a")
	b.Unsubscribe(eventbus.KindValidOrder, sub)
	b.Emit(context.Background(), eventbus.KindValidOrder, "b")

	if calls != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribe, got %d", calls)
	}
}

type countingSubscriber struct {
	count *int
}

func (c *countingSubscriber) Handle(ctx context.Context, kind eventbus.Kind, payload any) error {
	*c.count++
	return nil
}
