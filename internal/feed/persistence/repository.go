package persistence

import (
	"context"

	"github.com/arkbound/orderfeed/internal/feed/domain"
)

// OrderRepository is C5.
type OrderRepository interface {
	Save(ctx context.Context, o domain.OrderEvent) error
	SaveBatch(ctx context.Context, os []domain.OrderEvent) error
	FindByID(ctx context.Context, id string) (domain.OrderEvent, bool, error)
	FindByExternalID(ctx context.Context, partner domain.PartnerID, extID string) (domain.OrderEvent, bool, error)
	ExistsByExternalID(ctx context.Context, partner domain.PartnerID, extID string) (bool, error)
	FindMany(ctx context.Context, f OrderFilter, p Pagination, s Sort) (Page[domain.OrderEvent], error)
	Statistics(ctx context.Context, f OrderFilter) (OrderStatistics, error)
	Count(ctx context.Context, f OrderFilter) (int, error)
	Clear(ctx context.Context) error
}

// ErrorRepository is C6.
type ErrorRepository interface {
	Save(ctx context.Context, e domain.ErrorEvent) error
	FindByID(ctx context.Context, id string) (domain.ErrorEvent, bool, error)
	FindMany(ctx context.Context, f ErrorFilter, p Pagination, s Sort) (Page[domain.ErrorEvent], error)
	Statistics(ctx context.Context, f ErrorFilter) (ErrorStatistics, error)
	Clear(ctx context.Context) error
}
