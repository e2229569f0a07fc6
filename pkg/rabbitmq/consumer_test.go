package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestDispatchSignalsClosedDeliveryChannel(t *testing.T) {
	c := &Consumer{closed: make(chan struct{})}
	deliveries := make(chan amqp.Delivery)
	close(deliveries)

	done := make(chan struct{})
	go func() {
		c.dispatch(context.Background(), "bank_api_profile_photo_uploads", deliveries, nil)
		close(done)
	}()

	select {
	case <-c.Closed():
	case <-time.After(time.Second):
		t.Fatal("expected Closed() to fire after the delivery channel closed")
	}
	<-done

	// A second subscription ending the same way must not panic on a double close.
	c.markClosed()
}

func TestDispatchContextCancelIsNotAClosure(t *testing.T) {
	c := &Consumer{closed: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.dispatch(ctx, "bank_api_profile_photo_uploads", make(chan amqp.Delivery), nil)

	select {
	case <-c.Closed():
		t.Fatal("cancelling the subscribe context must not report a broker closure")
	default:
	}
}
