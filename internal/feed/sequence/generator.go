// Package sequence assigns each partner its own dense, gap-free,
// monotonically increasing counter (C3). Only accepted orders consume a
// number: a rejected submission must not advance the sequence.
package sequence

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/platform/snapshot"
)

// Generator hands out per-partner sequence numbers.
type Generator interface {
	Next(ctx context.Context, partner domain.PartnerID) (int64, error)
	Current(partner domain.PartnerID) int64
	Reset(partner domain.PartnerID)
	ResetAll()
}

// FaultSink receives an ErrorEvent when persistence fails but the
// in-memory counter must still advance (spec's failure policy for C3:
// never block ingestion on a snapshot write).
type FaultSink interface {
	ReportFault(event domain.ErrorEvent)
}

// InMemoryGenerator guards every partner counter behind one mutex, since
// the partner set is small and closed; a per-partner lock would only add
// contention surface without a throughput benefit at this scale.
type InMemoryGenerator struct {
	mu       sync.Mutex
	counters map[domain.PartnerID]int64

	debouncer *snapshot.Debouncer
	faults    FaultSink
	logger    *slog.Logger
}

// NewInMemoryGenerator constructs a generator seeded from a prior
// snapshot at snapshotPath, if one exists. debounce/faults may be
// nil, in which case the generator runs purely in memory with no
// durability (suitable for tests).
func NewInMemoryGenerator(snapshotPath string, debounce *snapshot.Debouncer, faults FaultSink, logger *slog.Logger) *InMemoryGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &InMemoryGenerator{
		counters:  make(map[domain.PartnerID]int64),
		debouncer: debounce,
		faults:    faults,
		logger:    logger,
	}
	if snapshotPath != "" {
		var restored map[domain.PartnerID]int64
		if err := snapshot.Load(snapshotPath, &restored); err != nil {
			logger.Warn("could not restore sequence snapshot", "path", snapshotPath, "error", err)
		}
		for k, v := range restored {
			g.counters[k] = v
		}
	}
	return g
}

func (g *InMemoryGenerator) Next(ctx context.Context, partner domain.PartnerID) (int64, error) {
	if !partner.IsValid() {
		return 0, domain.ErrUnknownPartner
	}

	g.mu.Lock()
	g.counters[partner]++
	next := g.counters[partner]
	g.mu.Unlock()

	g.schedulePersist()
	return next, nil
}

func (g *InMemoryGenerator) Current(partner domain.PartnerID) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters[partner]
}

func (g *InMemoryGenerator) Reset(partner domain.PartnerID) {
	g.mu.Lock()
	g.counters[partner] = 0
	g.mu.Unlock()
	g.schedulePersist()
}

func (g *InMemoryGenerator) ResetAll() {
	g.mu.Lock()
	for p := range g.counters {
		g.counters[p] = 0
	}
	g.mu.Unlock()
	g.schedulePersist()
}

func (g *InMemoryGenerator) schedulePersist() {
	if g.debouncer == nil {
		return
	}
	g.debouncer.Schedule(func() any {
		g.mu.Lock()
		defer g.mu.Unlock()
		snap := make(map[domain.PartnerID]int64, len(g.counters))
		for k, v := range g.counters {
			snap[k] = v
		}
		return snap
	})
}

// Flush forces any pending snapshot write to complete synchronously. On
// failure it reports an INTERNAL_ERROR through the fault sink rather
// than returning the error, matching §4.3's rule that sequence
// generation never blocks ingestion on durability.
func (g *InMemoryGenerator) Flush() {
	if g.debouncer == nil {
		return
	}
	if err := g.debouncer.Flush(); err != nil {
		g.logger.Error("sequence snapshot flush failed", "error", err)
		if g.faults != nil {
			g.faults.ReportFault(domain.ErrorEvent{
				ErrorCode: domain.CodeInternalError,
				Message:   "sequence snapshot persistence failed: " + err.Error(),
			})
		}
	}
}
