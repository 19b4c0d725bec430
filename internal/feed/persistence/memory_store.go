package persistence

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/platform/snapshot"
)

type partnerExtKey struct {
	Partner domain.PartnerID
	ExtID   string
}

// InMemoryOrderStore is the reference OrderRepository: a primary map of
// orders plus a secondary (partner, externalOrderId) index, both
// maintained under one lock so SaveBatch is atomic to readers.
type InMemoryOrderStore struct {
	mu      sync.RWMutex
	orders  map[string]domain.OrderEvent
	byExtID map[partnerExtKey]string
	order   []string // insertion order, for stable sort tie-breaks

	debouncer *snapshot.Debouncer
	logger    *slog.Logger
}

func NewInMemoryOrderStore(snapshotPath string, debounce *snapshot.Debouncer, logger *slog.Logger) *InMemoryOrderStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &InMemoryOrderStore{
		orders:    make(map[string]domain.OrderEvent),
		byExtID:   make(map[partnerExtKey]string),
		debouncer: debounce,
		logger:    logger,
	}
	if snapshotPath != "" {
		var restored []domain.OrderEvent
		if err := snapshot.Load(snapshotPath, &restored); err != nil {
			logger.Warn("could not restore order snapshot", "path", snapshotPath, "error", err)
		}
		for _, o := range restored {
			s.insertLocked(o)
		}
	}
	return s
}

func (s *InMemoryOrderStore) insertLocked(o domain.OrderEvent) {
	if _, exists := s.orders[o.ID]; !exists {
		s.order = append(s.order, o.ID)
	}
	s.orders[o.ID] = o
	s.byExtID[partnerExtKey{o.PartnerID, o.ExternalOrderID}] = o.ID
}

func (s *InMemoryOrderStore) Save(ctx context.Context, o domain.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(o)
	s.schedulePersist()
	return nil
}

func (s *InMemoryOrderStore) SaveBatch(ctx context.Context, os []domain.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range os {
		s.insertLocked(o)
	}
	s.schedulePersist()
	return nil
}

func (s *InMemoryOrderStore) FindByID(ctx context.Context, id string) (domain.OrderEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok, nil
}

func (s *InMemoryOrderStore) FindByExternalID(ctx context.Context, partner domain.PartnerID, extID string) (domain.OrderEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExtID[partnerExtKey{partner, extID}]
	if !ok {
		return domain.OrderEvent{}, false, nil
	}
	o := s.orders[id]
	return o, true, nil
}

func (s *InMemoryOrderStore) ExistsByExternalID(ctx context.Context, partner domain.PartnerID, extID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byExtID[partnerExtKey{partner, extID}]
	return ok, nil
}

func matchesOrderFilter(o domain.OrderEvent, f OrderFilter) bool {
	if f.PartnerID != "" && o.PartnerID != f.PartnerID {
		return false
	}
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if f.ProductID != "" && o.ProductID != f.ProductID {
		return false
	}
	if !f.FromDate.IsZero() && o.TransactionTime.Before(f.FromDate) {
		return false
	}
	if !f.ToDate.IsZero() && o.TransactionTime.After(f.ToDate) {
		return false
	}
	if f.MinAmount != nil && o.GrossAmount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && o.GrossAmount > *f.MaxAmount {
		return false
	}
	return true
}

func (s *InMemoryOrderStore) matchingLocked(f OrderFilter) []domain.OrderEvent {
	out := make([]domain.OrderEvent, 0, len(s.order))
	for _, id := range s.order {
		o := s.orders[id]
		if matchesOrderFilter(o, f) {
			out = append(out, o)
		}
	}
	return out
}

func (s *InMemoryOrderStore) FindMany(ctx context.Context, f OrderFilter, p Pagination, srt Sort) (Page[domain.OrderEvent], error) {
	s.mu.RLock()
	matched := s.matchingLocked(f)
	s.mu.RUnlock()

	if srt.Field == "" {
		srt = Sort{Field: SortProcessedAt, Direction: SortDesc}
	}
	sortOrders(matched, srt)

	p = p.Normalize()
	return paginate(matched, p), nil
}

func (s *InMemoryOrderStore) Statistics(ctx context.Context, f OrderFilter) (OrderStatistics, error) {
	s.mu.RLock()
	matched := s.matchingLocked(f)
	s.mu.RUnlock()

	stats := zeroOrderStatistics()
	stats.TotalOrders = len(matched)
	for _, o := range matched {
		stats.OrdersByPartner[o.PartnerID]++
		stats.TotalGrossAmount += o.GrossAmount
		stats.TotalTaxAmount += o.TaxAmount
		stats.TotalNetAmount += o.NetAmount
		if o.SequenceNumber > stats.HighestSequence[o.PartnerID] {
			stats.HighestSequence[o.PartnerID] = o.SequenceNumber
		}
	}
	stats.TotalGrossAmount = domain.RoundToCents(stats.TotalGrossAmount)
	stats.TotalTaxAmount = domain.RoundToCents(stats.TotalTaxAmount)
	stats.TotalNetAmount = domain.RoundToCents(stats.TotalNetAmount)
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = domain.RoundToCents(stats.TotalGrossAmount / float64(stats.TotalOrders))
	}
	return stats, nil
}

func (s *InMemoryOrderStore) Count(ctx context.Context, f OrderFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchingLocked(f)), nil
}

func (s *InMemoryOrderStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[string]domain.OrderEvent)
	s.byExtID = make(map[partnerExtKey]string)
	s.order = nil
	s.schedulePersist()
	return nil
}

func (s *InMemoryOrderStore) schedulePersist() {
	if s.debouncer == nil {
		return
	}
	s.debouncer.Schedule(func() any {
		s.mu.RLock()
		defer s.mu.RUnlock()
		snap := make([]domain.OrderEvent, 0, len(s.order))
		for _, id := range s.order {
			snap = append(snap, s.orders[id])
		}
		return snap
	})
}

// orderSortKeyLess compares two orders on the requested field, ascending.
func orderSortKeyLess(a, b domain.OrderEvent, field SortField) bool {
	switch field {
	case SortTransactionTime:
		return a.TransactionTime.UnixMilli() < b.TransactionTime.UnixMilli()
	case SortGrossAmount:
		return a.GrossAmount < b.GrossAmount
	case SortSequenceNumber:
		return a.SequenceNumber < b.SequenceNumber
	default: // SortProcessedAt
		return a.ProcessedAt.UnixMilli() < b.ProcessedAt.UnixMilli()
	}
}

// sortOrders sorts in place, stably, so untouched ties keep the
// insertion order already present in the input slice.
func sortOrders(orders []domain.OrderEvent, s Sort) {
	sort.SliceStable(orders, func(i, j int) bool {
		if s.Direction == SortDesc {
			return orderSortKeyLess(orders[j], orders[i], s.Field)
		}
		return orderSortKeyLess(orders[i], orders[j], s.Field)
	})
}

func paginate[T any](items []T, p Pagination) Page[T] {
	total := len(items)
	totalPages := 0
	if p.PageSize > 0 {
		totalPages = (total + p.PageSize - 1) / p.PageSize
	}
	start := (p.Page - 1) * p.PageSize
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	data := make([]T, end-start)
	copy(data, items[start:end])
	return Page[T]{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: totalPages,
		HasMore:    p.Page < totalPages,
	}
}
