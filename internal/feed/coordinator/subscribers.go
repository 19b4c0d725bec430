package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
	"github.com/arkbound/orderfeed/internal/platform/eventbus"
)

// OrderPersistenceSubscriber is C5's subscriber on the valid-order
// stream: the only path by which an OrderEvent reaches the repository
// (I4).
type OrderPersistenceSubscriber struct {
	orders persistence.OrderRepository
}

func NewOrderPersistenceSubscriber(orders persistence.OrderRepository) *OrderPersistenceSubscriber {
	return &OrderPersistenceSubscriber{orders: orders}
}

func (s *OrderPersistenceSubscriber) Handle(ctx context.Context, kind eventbus.Kind, payload any) error {
	if kind != eventbus.KindValidOrder {
		return nil
	}
	valid, ok := payload.(domain.ValidOrderPayload)
	if !ok {
		return fmt.Errorf("order persistence subscriber: unexpected payload type %T", payload)
	}
	return s.orders.Save(ctx, valid.OrderEvent)
}

var _ eventbus.Subscriber = (*OrderPersistenceSubscriber)(nil)

// ErrorPersistenceSubscriber is C6's subscriber on the error-order
// stream.
type ErrorPersistenceSubscriber struct {
	errors persistence.ErrorRepository
	logger *slog.Logger
}

func NewErrorPersistenceSubscriber(errors persistence.ErrorRepository, logger *slog.Logger) *ErrorPersistenceSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorPersistenceSubscriber{errors: errors, logger: logger}
}

func (s *ErrorPersistenceSubscriber) Handle(ctx context.Context, kind eventbus.Kind, payload any) error {
	if kind != eventbus.KindErrorOrder {
		return nil
	}

	switch p := payload.(type) {
	case domain.ErrorOrderPayload:
		return s.errors.Save(ctx, domain.ErrorEvent{
			ID:              uuid.NewString(),
			PartnerID:       p.PartnerID,
			ExternalOrderID: p.OriginalOrderID,
			ErrorCode:       p.ErrorCode,
			Message:         primaryMessage(p),
			Details:         p.Errors,
			OriginalPayload: p.RawInput,
			Timestamp:       p.Timestamp,
		})
	case domain.ErrorEvent:
		// The bus itself re-emits INTERNAL_ERROR faults as a bare
		// ErrorEvent (see eventbus.reportFault); persist it as-is.
		return s.errors.Save(ctx, p)
	default:
		return fmt.Errorf("error persistence subscriber: unexpected payload type %T", payload)
	}
}

func primaryMessage(p domain.ErrorOrderPayload) string {
	if len(p.Errors) == 0 {
		return fmt.Sprintf("%s rejected with no field details", p.PartnerID)
	}
	return fmt.Sprintf("%s: %s", p.Errors[0].Field, p.Errors[0].Message)
}

var _ eventbus.Subscriber = (*ErrorPersistenceSubscriber)(nil)
