package rabbitmq

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const dialTimeout = 10 * time.Second

// NormalizeURL strips whitespace, quotes and anything before the scheme from an
// AMQP URL, as left behind by some hosting dashboards, and checks the scheme.
func NormalizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("invalid amqp url: %w", err)
	}
	switch u.Scheme {
	case "amqp", "amqps":
	default:
		return "", fmt.Errorf("unsupported amqp scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("amqp url has no host")
	}
	return clean, nil
}

// RedactURL returns the URL with its password masked, for logging.
func RedactURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}

func dial(amqpURL string) (*amqp.Connection, error) {
	clean, err := NormalizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", RedactURL(clean), err)
	}
	return conn, nil
}
