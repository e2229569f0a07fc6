/**
 * @description
 * This package wraps the RabbitMQ client for the bank API. The producer publishes
 * persistent JSON messages to durable topic exchanges: email commands for the
 * notification service and background jobs for this service's own workers.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrConnectionClosed is returned when the broker connection is gone and a
// channel cannot be reopened.
var ErrConnectionClosed = errors.New("rabbitmq connection is closed")

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// Producer publishes over a single channel guarded by a mutex. Exchanges are
// declared on first use per channel.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	appID    string
	declared map[string]bool
}

// NewProducer connects to the broker. appID is stamped on every message.
func NewProducer(amqpURL, appID string) (*Producer, error) {
	conn, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	p := &Producer{conn: conn, appID: appID}
	if err := p.ensureChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// Publish sends body as JSON. A failed publish reopens the channel and is
// retried once.
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", routingKey, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        p.appID,
		Type:         routingKey,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 1; attempt <= 2; attempt++ {
		if err = p.ensureChannel(); err != nil {
			return err
		}
		if err = p.declare(exchange); err == nil {
			err = p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
		}
		if err == nil {
			return nil
		}
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed\" exchange=%s routing_key=%s attempt=%d err=%v", exchange, routingKey, attempt, err)
		p.resetChannel()
	}
	return fmt.Errorf("publish %s to %s: %w", routingKey, exchange, err)
}

func (p *Producer) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		return ErrConnectionClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	p.ch = ch
	p.declared = map[string]bool{}
	return nil
}

func (p *Producer) declare(exchange string) error {
	if p.declared[exchange] {
		return nil
	}
	if err := declareTopicExchange(p.ch, exchange); err != nil {
		return err
	}
	p.declared[exchange] = true
	return nil
}

func (p *Producer) resetChannel() {
	if p.ch != nil {
		p.ch.Close()
	}
	p.ch = nil
	p.declared = nil
}

// Close closes the channel and the connection.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetChannel()
	if p.conn != nil {
		p.conn.Close()
	}
}

// DiscardPublisher stands in when the broker is unreachable at startup. It logs
// and drops every message.
type DiscardPublisher struct {
	dropped atomic.Int64
}

func (d *DiscardPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	n := d.dropped.Add(1)
	log.Printf("level=warn component=rabbitmq_producer mode=discard msg=\"publish skipped\" exchange=%s routing_key=%s dropped=%d", exchange, routingKey, n)
	return nil
}

// Dropped reports how many messages were discarded.
func (d *DiscardPublisher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *DiscardPublisher) Close() {}

func declareTopicExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // autoDelete
		false,   // internal
		false,   // noWait
		nil,     // args
	)
}
