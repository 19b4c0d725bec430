package coordinator_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/arkbound/orderfeed/internal/feed/coordinator"
	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
)

func seedOrders(t *testing.T, n int) *persistence.InMemoryOrderStore {
	t.Helper()
	store := persistence.NewInMemoryOrderStore("", nil, nil)
	now := time.Now()
	for i := 0; i < n; i++ {
		store.Save(context.Background(), domain.OrderEvent{
			ID:              "id-" + string(rune('a'+i)),
			ExternalOrderID: "EXT-" + string(rune('a'+i)),
			PartnerID:       domain.PartnerA,
			SequenceNumber:  int64(i + 1),
			GrossAmount:     float64(10 * (i + 1)),
			TransactionTime: now.Add(time.Duration(i) * time.Minute),
			ProcessedAt:     now.Add(time.Duration(i) * time.Minute),
		})
	}
	return store
}

func TestQueryCoordinator_FindOrders_EnforcesPageSizeCeiling(t *testing.T) {
	store := seedOrders(t, 5)
	q := coordinator.NewQueryCoordinator(store, persistence.NewInMemoryErrorStore("", nil, nil))

	page, err := q.FindOrders(context.Background(), url.Values{"pageSize": {"500"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.PageSize != persistence.MaxPageSize {
		t.Fatalf("expected page size clamped to %d, got %d", persistence.MaxPageSize, page.PageSize)
	}
}

func TestQueryCoordinator_FindOrders_DefaultsPageAndSize(t *testing.T) {
	store := seedOrders(t, 3)
	q := coordinator.NewQueryCoordinator(store, persistence.NewInMemoryErrorStore("", nil, nil))

	page, err := q.FindOrders(context.Background(), url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page != 1 || page.PageSize != persistence.DefaultPageSize {
		t.Fatalf("unexpected defaults: page=%d pageSize=%d", page.Page, page.PageSize)
	}
}

func TestQueryCoordinator_OrdersByPartner_AcceptsShortForm(t *testing.T) {
	store := seedOrders(t, 2)
	q := coordinator.NewQueryCoordinator(store, persistence.NewInMemoryErrorStore("", nil, nil))

	page, err := q.OrdersByPartner(context.Background(), "A", url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 orders for partner A, got %d", page.Total)
	}
}

func TestQueryCoordinator_OrdersByPartner_RejectsUnknownPartner(t *testing.T) {
	store := seedOrders(t, 1)
	q := coordinator.NewQueryCoordinator(store, persistence.NewInMemoryErrorStore("", nil, nil))

	if _, err := q.OrdersByPartner(context.Background(), "C", url.Values{}); err == nil {
		t.Fatal("expected an error for an unknown partner id")
	}
}

func TestQueryCoordinator_FindOrders_RejectsMalformedFromDate(t *testing.T) {
	store := seedOrders(t, 1)
	q := coordinator.NewQueryCoordinator(store, persistence.NewInMemoryErrorStore("", nil, nil))

	if _, err := q.FindOrders(context.Background(), url.Values{"fromDate": {"not-a-date"}}); err == nil {
		t.Fatal("expected an error for a malformed fromDate")
	}
}

func TestQueryCoordinator_OrderStatistics_FiltersByPartner(t *testing.T) {
	store := seedOrders(t, 4)
	q := coordinator.NewQueryCoordinator(store, persistence.NewInMemoryErrorStore("", nil, nil))

	stats, err := q.OrderStatistics(context.Background(), url.Values{"partnerId": {"PARTNER_A"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalOrders != 4 {
		t.Fatalf("expected 4 orders, got %d", stats.TotalOrders)
	}
}
