package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/metrics"
)

// Hub fans events out to in-process subscribers.
// Delivery never blocks the publisher: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan ListingEvent
	nextID uint64
	buffer int
}

// NewHub creates a hub whose subscriber channels hold up to buffer pending events
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[uint64]chan ListingEvent),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber. The returned cancel function unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan ListingEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan ListingEvent, h.buffer)
	h.subs[id] = ch
	metrics.EventSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
			metrics.EventSubscribers.Dec()
		})
	}
}

// Publish delivers the event to every current subscriber
func (h *Hub) Publish(ctx context.Context, event ListingEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			metrics.EventsDropped.WithLabelValues("hub").Inc()
			logger.WarnCtx(ctx, "Dropping event for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("event_id", event.ID))
		}
	}
	return nil
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
