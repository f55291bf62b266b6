package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/events"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

// EventHandler is called for every listing event received
type EventHandler func(event events.ListingEvent)

// Subscriber follows listing events on the stream with an ephemeral consumer.
// Only events published after Run starts are delivered.
type Subscriber struct {
	nc     adapter.NatsConn
	js     adapter.JetStream
	stream string
	prefix string
	json   adapter.JSON
}

// NewSubscriber connects to NATS and returns a subscriber for cfg.StreamName
func NewSubscriber(cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (*Subscriber, error) {
	nc, js, err := connect(cfg, natsJS)
	if err != nil {
		return nil, err
	}

	return &Subscriber{
		nc:     nc,
		js:     js,
		stream: cfg.StreamName,
		prefix: subjectPrefix(cfg),
		json:   jsonAdapter,
	}, nil
}

// Run delivers events to handler until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context, handler EventHandler) error {
	consumerConfig := jetstream.ConsumerConfig{
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckNonePolicy,
		FilterSubject:     s.prefix + ".>",
		InactiveThreshold: time.Minute,
	}

	stop, err := s.js.Consume(ctx, s.stream, consumerConfig, func(subject string, data []byte) {
		var event events.ListingEvent
		if err := s.json.Unmarshal(data, &event); err != nil {
			logger.Warn("Dropping unparseable listing event",
				zap.String("subject", subject),
				zap.Error(err))
			return
		}

		logger.Debug("Received listing event",
			zap.String("subject", subject),
			zap.String("event_id", event.ID),
			zap.Uint64("listing_id", event.ListingID))
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("failed to consume stream %s: %w", s.stream, err)
	}
	defer stop()

	logger.InfoCtx(ctx, "Following listing events", zap.String("stream", s.stream), zap.String("subject", s.prefix+".>"))

	<-ctx.Done()
	return ctx.Err()
}

// Close closes the NATS connection
func (s *Subscriber) Close() {
	if s.nc == nil {
		return
	}

	s.nc.Close()
}
