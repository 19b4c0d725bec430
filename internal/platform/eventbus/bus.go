// Package eventbus generalizes the teacher's in-process publish/subscribe
// primitive to the two order-feed stream kinds. For production, this is
// swappable for a durable queue via the amqpbus package.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arkbound/orderfeed/internal/feed/domain"
)

// Kind is a stream identifier: VALID_ORDER or ERROR_ORDER.
type Kind string

const (
	KindValidOrder Kind = "VALID_ORDER"
	KindErrorOrder Kind = "ERROR_ORDER"
)

// Subscriber receives payloads emitted on a stream.
type Subscriber interface {
	Handle(ctx context.Context, kind Kind, payload any) error
}

// SubscriberFunc adapts an ordinary function to a Subscriber.
type SubscriberFunc func(ctx context.Context, kind Kind, payload any) error

func (f SubscriberFunc) Handle(ctx context.Context, kind Kind, payload any) error {
	return f(ctx, kind, payload)
}

// Bus is the stream fan-out abstraction C4 depends on.
type Bus interface {
	Emit(ctx context.Context, kind Kind, payload any)
	Subscribe(kind Kind, sub Subscriber)
	Unsubscribe(kind Kind, sub Subscriber)
	History(kind Kind) []any
}

// InMemoryBus fans out synchronously in subscription order, in the
// caller's goroutine, mirroring the teacher's InMemoryEventBus. Emit
// never returns an error to the producer: subscriber failures are
// logged and re-reported as an INTERNAL_ERROR on the error stream
// itself, one level deep only, so a failing error-stream subscriber
// cannot recurse into an emit storm.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]Subscriber
	history     map[Kind][]any
	logger      *slog.Logger
}

func New(logger *slog.Logger) *InMemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		subscribers: make(map[Kind][]Subscriber),
		history:     make(map[Kind][]any),
		logger:      logger,
	}
}

// Emit snapshots the subscriber list under lock, then dispatches outside
// the lock so a slow or reentrant subscriber never blocks Subscribe.
func (b *InMemoryBus) Emit(ctx context.Context, kind Kind, payload any) {
	b.mu.Lock()
	b.history[kind] = append(b.history[kind], payload)
	subs := make([]Subscriber, len(b.subscribers[kind]))
	copy(subs, b.subscribers[kind])
	b.mu.Unlock()

	b.logger.Debug("emitting event", slog.String("kind", string(kind)), slog.Int("subscriber_count", len(subs)))

	for _, sub := range subs {
		if err := sub.Handle(ctx, kind, payload); err != nil {
			b.logger.Error("subscriber failed", slog.String("kind", string(kind)), slog.Any("error", err))
			b.reportFault(ctx, kind, err)
		}
	}
}

// reportFault re-emits a subscriber failure on the error stream, unless
// the failure originated on the error stream itself.
func (b *InMemoryBus) reportFault(ctx context.Context, kind Kind, cause error) {
	if kind == KindErrorOrder {
		return
	}
	fault := domain.ErrorEvent{
		ErrorCode: domain.CodeInternalError,
		Message:   "subscriber failed handling " + string(kind) + ": " + cause.Error(),
	}
	b.mu.Lock()
	b.history[KindErrorOrder] = append(b.history[KindErrorOrder], fault)
	subs := make([]Subscriber, len(b.subscribers[KindErrorOrder]))
	copy(subs, b.subscribers[KindErrorOrder])
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Handle(ctx, KindErrorOrder, fault); err != nil {
			b.logger.Error("fault subscriber failed, dropping to avoid a feedback loop", slog.Any("error", err))
		}
	}
}

func (b *InMemoryBus) Subscribe(kind Kind, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], sub)
}

func (b *InMemoryBus) Unsubscribe(kind Kind, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[kind]
	for i, s := range subs {
		if subscriberEqual(s, sub) {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// subscriberEqual compares two Subscribers by identity. A func-based
// Subscriber (SubscriberFunc) is not comparable, so callers that need to
// Unsubscribe should register a pointer-typed Subscriber instead.
func subscriberEqual(a, b Subscriber) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// History returns a copy of every payload emitted on kind, in emit order.
func (b *InMemoryBus) History(kind Kind) []any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]any, len(b.history[kind]))
	copy(out, b.history[kind])
	return out
}

var _ Bus = (*InMemoryBus)(nil)
