package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
)

func sampleOrder(id, extID string, partner domain.PartnerID, seq int64, gross float64, ts time.Time) domain.OrderEvent {
	return domain.OrderEvent{
		ID:              id,
		ExternalOrderID: extID,
		PartnerID:       partner,
		SequenceNumber:  seq,
		ProductID:       "SKU-1",
		CustomerID:      "C1",
		Quantity:        1,
		UnitPrice:       gross,
		GrossAmount:     gross,
		TaxAmount:       0,
		NetAmount:       gross,
		TransactionTime: ts,
		ProcessedAt:     ts,
	}
}

func TestInMemoryOrderStore_SaveAndFindByID(t *testing.T) {
	s := persistence.NewInMemoryOrderStore("", nil, nil)
	ctx := context.Background()
	order := sampleOrder("id-1", "EXT-1", domain.PartnerA, 1, 100, time.Now())

	if err := s.Save(ctx, order); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, ok, err := s.FindByID(ctx, "id-1")
	if err != nil || !ok {
		t.Fatalf("expected to find order, ok=%v err=%v", ok, err)
	}
	if got.ExternalOrderID != "EXT-1" {
		t.Errorf("unexpected external id: %s", got.ExternalOrderID)
	}
}

func TestInMemoryOrderStore_ExternalIndexSurvivesBatch(t *testing.T) {
	s := persistence.NewInMemoryOrderStore("", nil, nil)
	ctx := context.Background()
	now := time.Now()

	batch := []domain.OrderEvent{
		sampleOrder("id-1", "EXT-1", domain.PartnerA, 1, 10, now),
		sampleOrder("id-2", "EXT-2", domain.PartnerA, 2, 20, now),
	}
	if err := s.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("save batch failed: %v", err)
	}

	exists, err := s.ExistsByExternalID(ctx, domain.PartnerA, "EXT-2")
	if err != nil || !exists {
		t.Fatalf("expected EXT-2 to exist, got %v err=%v", exists, err)
	}
	found, ok, err := s.FindByExternalID(ctx, domain.PartnerA, "EXT-1")
	if err != nil || !ok || found.ID != "id-1" {
		t.Fatalf("unexpected lookup result: %v ok=%v err=%v", found, ok, err)
	}
}

func TestInMemoryOrderStore_FindMany_FiltersAndPaginates(t *testing.T) {
	s := persistence.NewInMemoryOrderStore("", nil, nil)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		partner := domain.PartnerA
		if i%2 == 0 {
			partner = domain.PartnerB
		}
		s.Save(ctx, sampleOrder(
			"id-"+string(rune('a'+i)), "EXT-"+string(rune('a'+i)), partner, int64(i+1), float64(10*(i+1)), now.Add(time.Duration(i)*time.Minute),
		))
	}

	page, err := s.FindMany(ctx, persistence.OrderFilter{PartnerID: domain.PartnerA}, persistence.Pagination{Page: 1, PageSize: 10}, persistence.Sort{})
	if err != nil {
		t.Fatalf("find many failed: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 partner-A orders, got %d", page.Total)
	}
}

func TestInMemoryOrderStore_Statistics_AggregatesAcrossPartners(t *testing.T) {
	s := persistence.NewInMemoryOrderStore("", nil, nil)
	ctx := context.Background()
	now := time.Now()

	s.Save(ctx, sampleOrder("id-1", "EXT-1", domain.PartnerA, 1, 100, now))
	s.Save(ctx, sampleOrder("id-2", "EXT-2", domain.PartnerB, 1, 50, now))

	stats, err := s.Statistics(ctx, persistence.OrderFilter{})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.TotalOrders != 2 {
		t.Fatalf("expected 2 total orders, got %d", stats.TotalOrders)
	}
	if stats.TotalGrossAmount != 150 {
		t.Errorf("expected total gross 150, got %v", stats.TotalGrossAmount)
	}
	if stats.AverageOrderValue != 75 {
		t.Errorf("expected average order value 75, got %v", stats.AverageOrderValue)
	}
	if stats.HighestSequence[domain.PartnerA] != 1 {
		t.Errorf("expected highest sequence 1 for partner A, got %d", stats.HighestSequence[domain.PartnerA])
	}
}

func TestInMemoryOrderStore_Statistics_ZeroOrdersYieldsZeroAverage(t *testing.T) {
	s := persistence.NewInMemoryOrderStore("", nil, nil)
	stats, err := s.Statistics(context.Background(), persistence.OrderFilter{})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.AverageOrderValue != 0 {
		t.Errorf("expected average 0 with no orders, got %v", stats.AverageOrderValue)
	}
}

func TestInMemoryOrderStore_SortDescByGrossAmount(t *testing.T) {
	s := persistence.NewInMemoryOrderStore("", nil, nil)
	ctx := context.Background()
	now := time.Now()

	s.Save(ctx, sampleOrder("id-1", "EXT-1", domain.PartnerA, 1, 10, now))
	s.Save(ctx, sampleOrder("id-2", "EXT-2", domain.PartnerA, 2, 30, now))
	s.Save(ctx, sampleOrder("id-3", "EXT-3", domain.PartnerA, 3, 20, now))

	page, err := s.FindMany(ctx, persistence.OrderFilter{}, persistence.Pagination{Page: 1, PageSize: 10},
		persistence.Sort{Field: persistence.SortGrossAmount, Direction: persistence.SortDesc})
	if err != nil {
		t.Fatalf("find many failed: %v", err)
	}
	if len(page.Data) != 3 || page.Data[0].GrossAmount != 30 || page.Data[2].GrossAmount != 10 {
		t.Fatalf("unexpected sort order: %v", page.Data)
	}
}

func TestInMemoryOrderStore_Clear_RemovesEverything(t *testing.T) {
	s := persistence.NewInMemoryOrderStore("", nil, nil)
	ctx := context.Background()
	s.Save(ctx, sampleOrder("id-1", "EXT-1", domain.PartnerA, 1, 10, time.Now()))

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	count, err := s.Count(ctx, persistence.OrderFilter{})
	if err != nil || count != 0 {
		t.Fatalf("expected 0 after clear, got %d err=%v", count, err)
	}
}

func TestInMemoryErrorStore_SaveAssignsIDWhenMissing(t *testing.T) {
	s := persistence.NewInMemoryErrorStore("", nil, nil)
	ctx := context.Background()

	e := domain.ErrorEvent{PartnerID: domain.PartnerA, ErrorCode: domain.CodeMissingRequiredField, Timestamp: time.Now()}
	if err := s.Save(ctx, e); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	page, err := s.FindMany(ctx, persistence.ErrorFilter{}, persistence.Pagination{Page: 1, PageSize: 10}, persistence.Sort{})
	if err != nil {
		t.Fatalf("find many failed: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID == "" {
		t.Fatalf("expected one error event with an assigned id, got %v", page.Data)
	}
}

func TestInMemoryErrorStore_Statistics_Last24Hours(t *testing.T) {
	s := persistence.NewInMemoryErrorStore("", nil, nil)
	ctx := context.Background()

	s.Save(ctx, domain.ErrorEvent{PartnerID: domain.PartnerA, ErrorCode: domain.CodeInvalidValue, Timestamp: time.Now()})
	s.Save(ctx, domain.ErrorEvent{PartnerID: domain.PartnerA, ErrorCode: domain.CodeInvalidValue, Timestamp: time.Now().Add(-48 * time.Hour)})

	stats, err := s.Statistics(ctx, persistence.ErrorFilter{})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.TotalErrors != 2 {
		t.Fatalf("expected 2 total errors, got %d", stats.TotalErrors)
	}
	if stats.Last24Hours != 1 {
		t.Errorf("expected 1 error in the last 24h, got %d", stats.Last24Hours)
	}
}
