// Package realtime fans "lead changed" signals out to connected clients.
package realtime

import (
	"context"
	"sync"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"

	"go.uber.org/zap"
)

var (
	_ port.ChangePublisher  = (*Hub)(nil)
	_ port.ChangeSubscriber = (*Hub)(nil)
)

const defaultBuffer = 16

// Hub is an in-process, non-blocking broadcaster. A subscriber whose buffer
// is full is evicted and its channel closed, so it can reconnect and re-read
// instead of silently missing a change.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan domain.LeadChange]struct{}
	closed  bool
	logger  *zap.Logger
	dropped func()
}

// NewHub creates an empty hub. onDrop, when set, is called for every
// subscriber evicted for falling behind.
func NewHub(logger *zap.Logger, onDrop func()) *Hub {
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Hub{
		subs:    make(map[chan domain.LeadChange]struct{}),
		logger:  logger,
		dropped: onDrop,
	}
}

// Subscribe registers a buffered channel. The returned func unsubscribes
// and closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(buffer int) (<-chan domain.LeadChange, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan domain.LeadChange, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish never blocks on a subscriber. Signals already buffered for an
// evicted subscriber stay readable before its channel reports closed.
func (h *Hub) Publish(_ context.Context, change domain.LeadChange) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- change:
		default:
			delete(h.subs, ch)
			close(ch)
			h.dropped()
			h.logger.Debug("realtime: subscriber buffer full, evicted",
				zap.String("lead_id", change.LeadID))
		}
	}
	return nil
}

// Subscribers reports the live subscription count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
	h.closed = true
}
