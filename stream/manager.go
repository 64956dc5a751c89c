package stream

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tickergate/logger"
	"tickergate/models"
)

const (
	feedTicker = "ticker"
	feedDepth  = "depth"
)

// Manager owns the upstream subscriptions for the tracked pair: one
// mini-ticker feed and one depth feed. At most one subscription per feed
// kind is active at any time; Resubscribe swaps both atomically with
// respect to other Manager calls.
type Manager struct {
	client        Client
	hub           Publisher
	current       func() string
	depthInterval string
	log           *logger.Log

	mu   sync.Mutex
	subs map[string]*Subscription
	pair string
}

// NewManager creates a subscription manager. current must report the
// registry's live pair; it is consulted by the drop-check before any
// event is published.
func NewManager(client Client, hub Publisher, current func() string, depthInterval string) *Manager {
	return &Manager{
		client:        client,
		hub:           hub,
		current:       current,
		depthInterval: depthInterval,
		log:           logger.GetLogger(),
		subs:          make(map[string]*Subscription),
	}
}

// Resubscribe tears down the active feeds and binds both feeds to next.
// Old-feed teardown is best effort and never blocks the new subscription;
// a subscribe failure aborts the swap, attempts to restore the previous
// pair's feeds and is returned to the caller.
func (m *Manager) Resubscribe(next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.pair
	if err := m.bindLocked(next); err != nil {
		if prev != "" {
			if rerr := m.bindLocked(prev); rerr != nil {
				m.log.WithComponent("stream_manager").WithError(rerr).
					WithFields(logger.Fields{"pair": prev}).
					Error("failed to restore previous feeds after aborted switch")
			}
		}
		return err
	}

	m.pair = next
	return nil
}

// bindLocked points both feeds at pair, unsubscribing whatever they were
// bound to before. Caller holds m.mu.
func (m *Manager) bindLocked(pair string) error {
	log := m.log.WithComponent("stream_manager").WithFields(logger.Fields{"pair": pair})

	feeds := []struct {
		kind  string
		topic string
	}{
		{feedTicker, tickerTopic(pair)},
		{feedDepth, depthTopic(pair, m.depthInterval)},
	}

	for _, feed := range feeds {
		m.teardownLocked(feed.kind)

		sub, err := m.client.Subscribe(feed.topic, m.messageHandler(pair))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", feed.topic, err)
		}
		m.subs[feed.kind] = sub
		log.WithFields(logger.Fields{"topic": feed.topic}).Info("subscribed to upstream feed")
	}

	return nil
}

// teardownLocked releases the active subscription of one feed kind.
// Unsubscribe failures are logged and ignored: a stuck old feed must never
// block establishing the new one.
func (m *Manager) teardownLocked(kind string) {
	sub, ok := m.subs[kind]
	if !ok {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		m.log.WithComponent("stream_manager").WithError(err).
			WithFields(logger.Fields{"topic": sub.Topic}).
			Warn("failed to unsubscribe from upstream feed")
	}
	delete(m.subs, kind)
}

// DisconnectAll unsubscribes every active feed and drops the upstream
// connection. Safe to call repeatedly and with no active subscriptions.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for kind := range m.subs {
		m.teardownLocked(kind)
	}
	m.pair = ""

	if err := m.client.Disconnect(); err != nil {
		m.log.WithComponent("stream_manager").WithError(err).Warn("failed to disconnect upstream client")
	}
}

// messageHandler returns the per-subscription handler. It captures pair by
// value so a message that arrives after a later switch is still tagged with
// the pair it belongs to, and the drop-check can discard it.
func (m *Manager) messageHandler(pair string) Handler {
	log := m.log.WithComponent("stream_handler").WithFields(logger.Fields{"pair": pair})

	return func(payload []byte) {
		logger.IncrementStreamRead()

		var head models.StreamMessage
		if err := json.Unmarshal(payload, &head); err != nil {
			logger.IncrementDroppedMalformed()
			log.WithError(err).Warn("discarding malformed upstream message")
			return
		}

		switch head.Event {
		case "24hrMiniTicker":
			m.handleMiniTicker(pair, payload, log)
		case "depthUpdate":
			m.handleDepthUpdate(pair, payload, log)
		default:
			log.WithFields(logger.Fields{"event": head.Event}).Debug("ignoring unclassified upstream message")
		}
	}
}

func (m *Manager) handleMiniTicker(pair string, payload []byte, log *logger.Entry) {
	var msg models.MiniTickerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.IncrementDroppedMalformed()
		log.WithError(err).Warn("discarding malformed mini-ticker message")
		return
	}

	last, err := decimal.NewFromString(msg.LastPrice)
	if err != nil {
		logger.IncrementDroppedMalformed()
		log.WithError(err).Warn("discarding mini-ticker with bad last price")
		return
	}
	open, err := decimal.NewFromString(msg.OpenPrice)
	if err != nil {
		logger.IncrementDroppedMalformed()
		log.WithError(err).Warn("discarding mini-ticker with bad open price")
		return
	}

	change := decimal.Zero
	if !open.IsZero() {
		change = last.Sub(open).Div(open).Mul(decimal.NewFromInt(100))
	}

	m.publish(pair, models.PriceEvent{
		Type:          models.EventTypePrice,
		Pair:          pair,
		Price:         last.StringFixed(2),
		ChangePercent: change.StringFixed(2),
		Timestamp:     msg.EventTime,
	})
}

func (m *Manager) handleDepthUpdate(pair string, payload []byte, log *logger.Entry) {
	var msg models.DepthUpdateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.IncrementDroppedMalformed()
		log.WithError(err).Warn("discarding malformed depth message")
		return
	}

	m.publish(pair, models.DepthEvent{
		Type: models.EventTypeDepth,
		Pair: pair,
		Bids: msg.Bids,
		Asks: msg.Asks,
	})
}

// publish runs the drop-check: events tagged with a pair that is no longer
// current are discarded, which closes the race window during a switch.
func (m *Manager) publish(pair string, event interface{}) {
	if m.current() != pair {
		logger.IncrementDroppedStale()
		return
	}
	m.hub.Publish(event)
	logger.IncrementEventPublished()
}
