package app

import (
	"context"
	"log"
	"strings"

	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/pkg/rabbitmq"
)

// Mailer delivers templated emails out of band.
type Mailer interface {
	Send(ctx context.Context, recipient, template string, data map[string]any) error
}

// QueueMailer hands email commands to the notification service over RabbitMQ.
type QueueMailer struct {
	producer rabbitmq.Publisher
	siteName string
}

func NewQueueMailer(producer rabbitmq.Publisher, siteName string) *QueueMailer {
	return &QueueMailer{producer: producer, siteName: siteName}
}

// Send publishes an EmailCommand routed as email.<template>.
func (m *QueueMailer) Send(ctx context.Context, recipient, template string, data map[string]any) error {
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	if _, ok := payload["site_name"]; !ok && m.siteName != "" {
		payload["site_name"] = m.siteName
	}

	cmd := domain.EmailCommand{
		To:       strings.TrimSpace(recipient),
		Template: template,
		Context:  payload,
	}
	return m.producer.Publish(ctx, domain.NotificationExchange, "email."+template, cmd)
}

// sendBestEffort sends an email and logs, rather than returns, any failure.
func sendBestEffort(ctx context.Context, mailer Mailer, recipient, template string, data map[string]any) {
	if mailer == nil {
		return
	}
	if err := mailer.Send(ctx, recipient, template, data); err != nil {
		log.Printf("level=warn component=mailer msg=\"email dispatch failed\" template=%s err=%v", template, err)
	}
}
