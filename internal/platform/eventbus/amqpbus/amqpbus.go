// Package amqpbus is the durable Bus alternative: a RabbitMQ-backed
// topic exchange standing in for eventbus.InMemoryBus in deployments
// that need delivery to survive a process restart.
package amqpbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/arkbound/orderfeed/internal/platform/eventbus"
)

const exchangeName = "orderfeed.events"

var routingKeys = map[eventbus.Kind]string{
	eventbus.KindValidOrder: "valid_order",
	eventbus.KindErrorOrder: "error_order",
}

// Bus is a durable, reconnecting Bus implementation over RabbitMQ. Its
// connection lifecycle mirrors the teacher pack's reconnect-watcher
// client: a single connection and publish channel, re-established with
// exponential backoff whenever either closes.
type Bus struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	subMu       sync.RWMutex
	subscribers map[eventbus.Kind][]eventbus.Subscriber

	closed    chan struct{}
	reconnect chan struct{}
}

// Connect dials RabbitMQ, declares the topic exchange, and starts the
// background reconnect watcher.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		url:         url,
		logger:      logger,
		subscribers: make(map[eventbus.Kind][]eventbus.Subscriber),
		closed:      make(chan struct{}),
		reconnect:   make(chan struct{}, 1),
	}
	if err := b.connectOnce(ctx); err != nil {
		return nil, err
	}
	go b.watch()
	return b, nil
}

func (b *Bus) connectOnce(ctx context.Context) error {
	conn, err := amqp.DialConfig(b.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("amqpbus: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqpbus: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqpbus: declare exchange: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	if b.pubChan != nil {
		b.pubChan.Close()
	}
	b.pubChan = ch
	b.mu.Unlock()

	go func() {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-b.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}
		select {
		case b.reconnect <- struct{}{}:
		default:
		}
	}()

	b.logger.Info("amqpbus connected", slog.String("exchange", exchangeName))
	b.resubscribeConsumers()
	return nil
}

func (b *Bus) watch() {
	backoff := time.Second
	for {
		select {
		case <-b.closed:
			return
		case <-b.reconnect:
			for {
				select {
				case <-b.closed:
					return
				default:
				}
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				err := b.connectOnce(ctx)
				cancel()
				if err == nil {
					backoff = time.Second
					break
				}
				b.logger.Error("amqpbus reconnect failed", slog.Any("error", err))
				time.Sleep(backoff)
				if backoff < 30*time.Second {
					backoff *= 2
				}
			}
		}
	}
}

// Emit publishes payload, JSON-encoded, with the routing key for kind.
// A publish failure is logged; Emit never returns an error, matching
// eventbus.Bus's fire-and-forget contract.
func (b *Bus) Emit(ctx context.Context, kind eventbus.Kind, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("amqpbus: marshal payload failed", slog.Any("error", err))
		return
	}

	b.mu.RLock()
	ch := b.pubChan
	b.mu.RUnlock()
	if ch == nil {
		b.logger.Error("amqpbus: no publish channel available")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = ch.PublishWithContext(pubCtx, exchangeName, routingKeys[kind], false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		b.logger.Error("amqpbus: publish failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}

// Subscribe registers sub and, once connected, starts a consumer
// goroutine on a queue bound to kind's routing key.
func (b *Bus) Subscribe(kind eventbus.Kind, sub eventbus.Subscriber) {
	b.subMu.Lock()
	b.subscribers[kind] = append(b.subscribers[kind], sub)
	b.subMu.Unlock()

	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn != nil {
		b.startConsumer(kind, sub)
	}
}

func (b *Bus) resubscribeConsumers() {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for kind, subs := range b.subscribers {
		for _, sub := range subs {
			b.startConsumer(kind, sub)
		}
	}
}

func (b *Bus) startConsumer(kind eventbus.Kind, sub eventbus.Subscriber) {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return
	}
	ch, err := conn.Channel()
	if err != nil {
		b.logger.Error("amqpbus: open consumer channel failed", slog.Any("error", err))
		return
	}
	queueName := fmt.Sprintf("orderfeed.%s", routingKeys[kind])
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		b.logger.Error("amqpbus: declare queue failed", slog.Any("error", err))
		ch.Close()
		return
	}
	if err := ch.QueueBind(q.Name, routingKeys[kind], exchangeName, false, nil); err != nil {
		b.logger.Error("amqpbus: bind queue failed", slog.Any("error", err))
		ch.Close()
		return
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		b.logger.Error("amqpbus: consume failed", slog.Any("error", err))
		ch.Close()
		return
	}

	go func() {
		for d := range deliveries {
			var payload map[string]any
			if err := json.Unmarshal(d.Body, &payload); err != nil {
				b.logger.Error("amqpbus: undecodable delivery", slog.Any("error", err))
				d.Nack(false, false)
				continue
			}
			if err := sub.Handle(context.Background(), kind, payload); err != nil {
				b.logger.Error("amqpbus: subscriber failed", slog.Any("error", err))
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}()
}

// Unsubscribe is a no-op past registration removal: a consumer goroutine
// already bound to a queue is torn down only on Close, matching the
// teacher client's coarse-grained lifecycle (no per-consumer cancel).
func (b *Bus) Unsubscribe(kind eventbus.Kind, sub eventbus.Subscriber) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	subs := b.subscribers[kind]
	for i, s := range subs {
		if fmt.Sprintf("%p", s) == fmt.Sprintf("%p", sub) {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// History is not supported by the durable bus: message state lives in
// RabbitMQ, not in process memory. It always returns nil.
func (b *Bus) History(kind eventbus.Kind) []any {
	return nil
}

// Close stops the reconnect watcher and releases the connection.
func (b *Bus) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubChan != nil {
		b.pubChan.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

var _ eventbus.Bus = (*Bus)(nil)
