package persistence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/platform/snapshot"
)

// InMemoryErrorStore is the reference ErrorRepository.
type InMemoryErrorStore struct {
	mu     sync.RWMutex
	errors map[string]domain.ErrorEvent
	order  []string

	debouncer *snapshot.Debouncer
	logger    *slog.Logger

	// retention is the error-store TTL: events older than this are swept
	// on the next Save. Zero (the default) keeps events indefinitely,
	// matching the reference implementation's documented posture.
	retention time.Duration
}

// SetRetention configures the error-store TTL. Zero disables the sweep.
func (s *InMemoryErrorStore) SetRetention(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = d
}

// sweepLocked drops events older than the configured retention. Callers
// must hold s.mu for writing.
func (s *InMemoryErrorStore) sweepLocked() {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.retention)
	kept := s.order[:0]
	for _, id := range s.order {
		if s.errors[id].Timestamp.Before(cutoff) {
			delete(s.errors, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func NewInMemoryErrorStore(snapshotPath string, debounce *snapshot.Debouncer, logger *slog.Logger) *InMemoryErrorStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &InMemoryErrorStore{
		errors:    make(map[string]domain.ErrorEvent),
		debouncer: debounce,
		logger:    logger,
	}
	if snapshotPath != "" {
		var restored []domain.ErrorEvent
		if err := snapshot.Load(snapshotPath, &restored); err != nil {
			logger.Warn("could not restore error snapshot", "path", snapshotPath, "error", err)
		}
		for _, e := range restored {
			s.insertLocked(e)
		}
	}
	return s
}

func (s *InMemoryErrorStore) insertLocked(e domain.ErrorEvent) domain.ErrorEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := s.errors[e.ID]; !exists {
		s.order = append(s.order, e.ID)
	}
	s.errors[e.ID] = e
	return e
}

func (s *InMemoryErrorStore) Save(ctx context.Context, e domain.ErrorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(e)
	s.sweepLocked()
	s.schedulePersist()
	return nil
}

func (s *InMemoryErrorStore) FindByID(ctx context.Context, id string) (domain.ErrorEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.errors[id]
	return e, ok, nil
}

func matchesErrorFilter(e domain.ErrorEvent, f ErrorFilter) bool {
	if f.PartnerID != "" && e.PartnerID != f.PartnerID {
		return false
	}
	if f.ErrorCode != "" && e.ErrorCode != f.ErrorCode {
		return false
	}
	if !f.FromDate.IsZero() && e.Timestamp.Before(f.FromDate) {
		return false
	}
	if !f.ToDate.IsZero() && e.Timestamp.After(f.ToDate) {
		return false
	}
	return true
}

func (s *InMemoryErrorStore) matchingLocked(f ErrorFilter) []domain.ErrorEvent {
	out := make([]domain.ErrorEvent, 0, len(s.order))
	for _, id := range s.order {
		e := s.errors[id]
		if matchesErrorFilter(e, f) {
			out = append(out, e)
		}
	}
	return out
}

func (s *InMemoryErrorStore) FindMany(ctx context.Context, f ErrorFilter, p Pagination, srt Sort) (Page[domain.ErrorEvent], error) {
	s.mu.RLock()
	matched := s.matchingLocked(f)
	s.mu.RUnlock()

	if srt.Field == "" {
		srt = Sort{Field: SortTimestamp, Direction: SortDesc}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		less := matched[i].Timestamp.UnixMilli() < matched[j].Timestamp.UnixMilli()
		if srt.Direction == SortDesc {
			return matched[j].Timestamp.UnixMilli() < matched[i].Timestamp.UnixMilli()
		}
		return less
	})

	p = p.Normalize()
	return paginate(matched, p), nil
}

func (s *InMemoryErrorStore) Statistics(ctx context.Context, f ErrorFilter) (ErrorStatistics, error) {
	s.mu.RLock()
	matched := s.matchingLocked(f)
	s.mu.RUnlock()

	stats := zeroErrorStatistics()
	stats.TotalErrors = len(matched)
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, e := range matched {
		stats.ErrorsByPartner[e.PartnerID]++
		stats.ErrorsByCode[e.ErrorCode]++
		if e.Timestamp.After(cutoff) {
			stats.Last24Hours++
		}
	}
	return stats, nil
}

func (s *InMemoryErrorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = make(map[string]domain.ErrorEvent)
	s.order = nil
	s.schedulePersist()
	return nil
}

func (s *InMemoryErrorStore) schedulePersist() {
	if s.debouncer == nil {
		return
	}
	s.debouncer.Schedule(func() any {
		s.mu.RLock()
		defer s.mu.RUnlock()
		snap := make([]domain.ErrorEvent, 0, len(s.order))
		for _, id := range s.order {
			snap = append(snap, s.errors[id])
		}
		return snap
	})
}

var (
	_ OrderRepository = (*InMemoryOrderStore)(nil)
	_ ErrorRepository = (*InMemoryErrorStore)(nil)
)
