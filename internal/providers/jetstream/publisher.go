package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/events"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	// PublishAttempts bounds retries of a single publish; zero means 3
	PublishAttempts uint64
}

// Publisher publishes listing events to NATS JetStream
type Publisher struct {
	nc       adapter.NatsConn
	js       adapter.JetStream
	prefix   string
	attempts uint64
	json     adapter.JSON
}

// NewPublisher connects to NATS, makes sure the stream exists and returns a publisher
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (*Publisher, error) {
	nc, js, err := connect(cfg, natsJS)
	if err != nil {
		return nil, err
	}

	prefix := subjectPrefix(cfg)

	if err := js.EnsureStream(ctx, cfg.StreamName, []string{prefix + ".>"}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}

	attempts := cfg.PublishAttempts
	if attempts == 0 {
		attempts = 3
	}

	return &Publisher{
		nc:       nc,
		js:       js,
		prefix:   prefix,
		attempts: attempts,
		json:     jsonAdapter,
	}, nil
}

// Publish publishes a listing event. The event id is used as the JetStream
// message id so a retried publish is deduplicated by the server.
func (p *Publisher) Publish(ctx context.Context, event events.ListingEvent) error {
	data, err := p.json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.Subject(event)
	logger.DebugCtx(ctx, "Publishing NATS event", zap.String("subject", subject), zap.String("event_id", event.ID))

	operation := func() error {
		_, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, p.attempts-1), ctx)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subject constructs the NATS subject for an event.
// Format: {prefix}.{event_type}, e.g. listings.listing.purchased
func (p *Publisher) Subject(event events.ListingEvent) string {
	return fmt.Sprintf("%s.%s", p.prefix, event.Type)
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
