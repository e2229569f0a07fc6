package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body. Returning false requeues the message.
type Handler func(ctx context.Context, body []byte) bool

// Subscription describes a durable queue bound to a topic exchange, with one
// handler per routing key.
type Subscription struct {
	Exchange string
	Queue    string
	Prefetch int
	Routes   map[string]Handler
}

// Consumer owns a connection and channel dedicated to consuming.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	closed    chan struct{}
	closeOnce sync.Once
}

func NewConsumer(amqpURL string) (*Consumer, error) {
	conn, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, closed: make(chan struct{})}, nil
}

// Closed is closed once any subscription stops receiving because the broker
// closed its delivery channel. It is not closed when the subscribe ctx ends.
// There is no reconnect; callers decide how to degrade.
func (c *Consumer) Closed() <-chan struct{} {
	return c.closed
}

func (c *Consumer) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Subscribe declares the topology for sub and dispatches deliveries in a
// goroutine until ctx is done or the channel closes.
func (c *Consumer) Subscribe(ctx context.Context, sub Subscription) error {
	if len(sub.Routes) == 0 {
		return errors.New("subscription has no routes")
	}
	if err := declareTopicExchange(c.ch, sub.Exchange); err != nil {
		return fmt.Errorf("declare exchange %s: %w", sub.Exchange, err)
	}
	q, err := c.ch.QueueDeclare(sub.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", sub.Queue, err)
	}
	for routingKey, handler := range sub.Routes {
		if handler == nil {
			return fmt.Errorf("route %s has no handler", routingKey)
		}
		if err := c.ch.QueueBind(q.Name, routingKey, sub.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", routingKey, err)
		}
	}
	if sub.Prefetch > 0 {
		if err := c.ch.Qos(sub.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
	}

	deliveries, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	log.Printf("level=info component=rabbitmq_consumer msg=\"subscribed\" queue=%s exchange=%s routes=%d", q.Name, sub.Exchange, len(sub.Routes))

	go c.dispatch(ctx, q.Name, deliveries, sub.Routes)
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, routes map[string]Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Printf("level=warn component=rabbitmq_consumer msg=\"delivery channel closed\" queue=%s", queue)
				c.markClosed()
				return
			}
			settle(ctx, d, routes)
		}
	}
}

func settle(ctx context.Context, d amqp.Delivery, routes map[string]Handler) {
	handler, found := routes[d.RoutingKey]
	if !found {
		log.Printf("level=warn component=rabbitmq_consumer msg=\"no handler for routing key; dropping\" routing_key=%s message_id=%s", d.RoutingKey, d.MessageId)
		d.Ack(false)
		return
	}
	if handler(ctx, d.Body) {
		d.Ack(false)
		return
	}
	// A redelivered message that fails again is dropped instead of looping.
	if d.Redelivered {
		log.Printf("level=error component=rabbitmq_consumer msg=\"handler failed on redelivery; dropping\" routing_key=%s message_id=%s", d.RoutingKey, d.MessageId)
		d.Nack(false, false)
		return
	}
	log.Printf("level=warn component=rabbitmq_consumer msg=\"handler failed; requeuing\" routing_key=%s message_id=%s", d.RoutingKey, d.MessageId)
	d.Nack(false, true)
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
