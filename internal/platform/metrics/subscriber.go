package metrics

import (
	"context"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/platform/eventbus"
)

// Subscriber observes the valid-order and error-order streams and updates
// a Registry accordingly, so the metric set stays accurate without the
// feed coordinator itself depending on Prometheus.
type Subscriber struct {
	registry *Registry
}

func NewSubscriber(registry *Registry) *Subscriber {
	return &Subscriber{registry: registry}
}

func (s *Subscriber) Handle(ctx context.Context, kind eventbus.Kind, payload any) error {
	switch kind {
	case eventbus.KindValidOrder:
		valid, ok := payload.(domain.ValidOrderPayload)
		if !ok {
			return nil
		}
		s.registry.OrdersIngested.WithLabelValues(string(valid.OrderEvent.PartnerID)).Inc()
		s.registry.SequenceHighWater.WithLabelValues(string(valid.OrderEvent.PartnerID)).Set(float64(valid.OrderEvent.SequenceNumber))
	case eventbus.KindErrorOrder:
		switch p := payload.(type) {
		case domain.ErrorOrderPayload:
			s.registry.OrdersRejected.WithLabelValues(string(p.PartnerID), string(p.ErrorCode)).Inc()
		case domain.ErrorEvent:
			s.registry.BusSubscriberErrors.Inc()
		}
	}
	return nil
}

var _ eventbus.Subscriber = (*Subscriber)(nil)
