package events

import (
	"context"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/metrics"
)

// Dispatcher publishes every event to a local publisher inline and to remote
// publishers on a worker pool, so broker latency never delays an HTTP response.
type Dispatcher struct {
	local  Publisher
	remote []Publisher
	pool   pond.Pool
}

// NewDispatcher creates a dispatcher. local may be nil.
func NewDispatcher(ctx context.Context, poolSize, queueSize int, local Publisher, remote ...Publisher) *Dispatcher {
	if poolSize <= 0 {
		poolSize = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		local:  local,
		remote: remote,
		pool:   pond.NewPool(poolSize, pond.WithQueueSize(queueSize), pond.WithContext(ctx)),
	}
}

// Publish never fails: remote delivery errors are logged and counted
func (d *Dispatcher) Publish(ctx context.Context, event ListingEvent) error {
	if d.local != nil {
		if err := d.local.Publish(ctx, event); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("event_id", event.ID), zap.String("target", "local"))
		}
	}

	// The request context ends with the response; remote delivery must outlive it
	detached := context.WithoutCancel(ctx)
	for _, p := range d.remote {
		p := p
		d.pool.Submit(func() {
			if err := p.Publish(detached, event); err != nil {
				metrics.EventsDropped.WithLabelValues("remote").Inc()
				logger.ErrorCtx(detached, err,
					zap.String("event_id", event.ID),
					zap.String("event_type", string(event.Type)))
			}
		})
	}
	return nil
}

// Close waits for queued remote deliveries to finish
func (d *Dispatcher) Close() {
	d.pool.StopAndWait()
}
