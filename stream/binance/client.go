// Package binance implements stream.Client against the venue's combined
// stream endpoint. One websocket connection carries every subscribed feed;
// feeds are attached and detached with SUBSCRIBE/UNSUBSCRIBE frames.
package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tickergate/logger"
	"tickergate/stream"
)

type request struct {
	ID     int      `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	ID     *int            `json:"id"`
}

// Client is a combined-stream websocket client. The read loop dispatches
// each envelope to the handler registered for its topic; payloads for a
// topic are therefore delivered sequentially.
type Client struct {
	url              string
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	log              *logger.Log

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]stream.Handler
	closed   bool

	// gorilla allows a single concurrent writer
	writeMu sync.Mutex

	done chan struct{}
}

func NewClient(wsURL string, handshakeTimeout, pingInterval time.Duration) *Client {
	return &Client{
		url:              wsURL,
		handshakeTimeout: handshakeTimeout,
		pingInterval:     pingInterval,
		log:              logger.GetLogger(),
		handlers:         make(map[string]stream.Handler),
		done:             make(chan struct{}),
	}
}

// Connect dials the combined stream endpoint and starts the read and ping
// loops. It must be called once before Subscribe.
func (c *Client) Connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.pingLoop(conn)

	c.log.WithComponent("binance_stream").WithFields(logger.Fields{"url": c.url}).Info("connected to venue stream")
	return nil
}

// Subscribe attaches a handler to topic and sends the SUBSCRIBE frame.
func (c *Client) Subscribe(topic string, h stream.Handler) (*stream.Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("stream client is closed")
	}
	if c.conn == nil {
		c.mu.Unlock()
		return nil, errors.New("stream client is not connected")
	}
	if _, exists := c.handlers[topic]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to topic %s", topic)
	}
	c.handlers[topic] = h
	c.mu.Unlock()

	if err := c.writeJSON(request{ID: requestID(), Method: "SUBSCRIBE", Params: []string{topic}}); err != nil {
		c.mu.Lock()
		delete(c.handlers, topic)
		c.mu.Unlock()
		return nil, fmt.Errorf("send subscribe for %s: %w", topic, err)
	}

	return &stream.Subscription{
		Topic:       topic,
		Unsubscribe: func() error { return c.unsubscribe(topic) },
	}, nil
}

func (c *Client) unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.handlers, topic)
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil
	}
	if err := c.writeJSON(request{ID: requestID(), Method: "UNSUBSCRIBE", Params: []string{topic}}); err != nil {
		return fmt.Errorf("send unsubscribe for %s: %w", topic, err)
	}
	return nil
}

// Disconnect drops the connection and stops the loops. Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.handlers = make(map[string]stream.Handler)
	c.mu.Unlock()

	close(c.done)
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	log := c.log.WithComponent("binance_stream")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.WithError(err).Error("read from venue stream failed")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			log.WithError(err).Warn("skipping undecodable stream frame")
			continue
		}

		if env.ID != nil {
			log.WithFields(logger.Fields{"id": *env.ID}).Debug("received subscription ack")
			continue
		}
		if env.Stream == "" {
			continue
		}

		c.mu.Lock()
		h, ok := c.handlers[env.Stream]
		c.mu.Unlock()
		if ok {
			h(env.Data)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.handshakeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.log.WithComponent("binance_stream").WithError(err).Warn("ping to venue stream failed")
			}
		}
	}
}

func (c *Client) writeJSON(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("stream client is not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func requestID() int {
	return 10000 + rand.Intn(9989999)
}
