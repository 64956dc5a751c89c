// Package hub fans serialized events out to every connected subscriber.
package hub

import (
	"encoding/json"
	"sync"

	"tickergate/logger"
)

// Subscriber is one open downstream connection. Send must be safe to call
// from the hub's publishing goroutines; implementations serialize writes.
type Subscriber interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Hub holds the set of connected subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
	log  *logger.Log
}

func New() *Hub {
	return &Hub{
		subs: make(map[string]Subscriber),
		log:  logger.GetLogger(),
	}
}

func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.ID()] = s
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Len reports the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish serializes event once and delivers it to every subscriber. Each
// send is isolated: a failing subscriber is unregistered and closed without
// affecting delivery to the rest, and no error reaches the caller.
func (h *Hub) Publish(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithComponent("hub").WithError(err).Error("failed to serialize event")
		return
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.Send(data); err != nil {
			logger.IncrementSendFailure()
			h.log.WithComponent("hub").WithError(err).
				WithFields(logger.Fields{"subscriber": s.ID()}).
				Warn("dropping subscriber after failed send")
			h.Unregister(s.ID())
			_ = s.Close()
		}
	}
}

// CloseAll disconnects every subscriber and empties the set.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
}
