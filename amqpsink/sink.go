// Package amqpsink publishes gatekit audit events to a RabbitMQ exchange
// as JSON messages. The sink is fed by the engine's audit dispatcher, so
// publishing happens off the request path; publish failures are counted
// and dropped, never retried inline.
package amqpsink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	gatekit "github.com/afyadigital/gatekit"
)

const (
	defaultExchange   = "gatekit.audit"
	defaultRoutingKey = "audit"
)

// Options tunes the sink. Zero values use the defaults above.
type Options struct {
	Exchange   string
	RoutingKey string
}

// Sink is a gatekit.AuditSink backed by one AMQP channel.
type Sink struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	opts    Options
	dropped atomic.Uint64
}

var _ gatekit.AuditSink = (*Sink)(nil)

// Dial connects to the broker, declares a durable direct exchange, and
// returns the sink.
func Dial(url string, opts Options) (*Sink, error) {
	if opts.Exchange == "" {
		opts.Exchange = defaultExchange
	}
	if opts.RoutingKey == "" {
		opts.RoutingKey = defaultRoutingKey
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		opts.Exchange, // name
		"direct",      // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	return &Sink{
		conn:    conn,
		channel: channel,
		opts:    opts,
	}, nil
}

// Emit publishes the event as a persistent JSON message. Failures are
// dropped and counted; the audit pipeline is best-effort by contract.
func (s *Sink) Emit(ctx context.Context, event gatekit.AuditEvent) {
	if s == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		s.dropped.Add(1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.channel.PublishWithContext(ctx,
		s.opts.Exchange,
		s.opts.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		s.dropped.Add(1)
	}
}

// Dropped reports how many events failed to publish.
func (s *Sink) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Close shuts the channel and connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.channel.Close(); err != nil {
		_ = s.conn.Close()
		return err
	}
	return s.conn.Close()
}
