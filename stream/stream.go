// Package stream owns the upstream feed subscriptions for the tracked
// trading pair. The Client interface is the boundary to the venue's
// streaming API; Manager decides which feeds are live and turns raw
// messages into subscriber events.
package stream

import (
	"fmt"
	"strings"
)

// Handler receives the raw payload of one upstream message.
type Handler func(payload []byte)

// Subscription is one active feed binding. Unsubscribe releases it.
type Subscription struct {
	Topic       string
	Unsubscribe func() error
}

// Client is the venue streaming capability: named feeds with an injected
// message handler. Implementations deliver payloads sequentially per topic.
type Client interface {
	Subscribe(topic string, h Handler) (*Subscription, error)
	Disconnect() error
}

// Publisher fans events out to subscribers.
type Publisher interface {
	Publish(event interface{})
}

func tickerTopic(pair string) string {
	return strings.ToLower(pair) + "@miniTicker"
}

func depthTopic(pair, interval string) string {
	return fmt.Sprintf("%s@depth@%s", strings.ToLower(pair), interval)
}
