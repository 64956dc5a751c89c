package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tickergate/logger"
	"tickergate/models"
)

// Fan-out is sequential, so a single write may not stall behind a
// subscriber whose peer stopped reading.
const writeWait = 10 * time.Second

// wsSubscriber adapts one websocket connection to the hub's Subscriber
// interface. The mutex serializes writes, which also gives each subscriber
// FIFO delivery.
type wsSubscriber struct {
	id      string
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (w *wsSubscriber) ID() string { return w.id }

// Send writes one frame under a deadline. A subscriber that cannot absorb
// the frame in time fails the send and is dropped by the hub rather than
// wedging fan-out for everyone behind it.
func (w *wsSubscriber) Send(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsSubscriber) Close() error {
	return w.conn.Close()
}

// handleSubscriber upgrades the connection, sends the initial config event
// and keeps reading until the subscriber goes away. The feed is push-only:
// anything the subscriber sends is logged and ignored.
func (s *Server) handleSubscriber(c *gin.Context) {
	log := s.log.WithComponent("subscriber")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	sub := &wsSubscriber{id: uuid.NewString(), conn: conn, timeout: writeWait}
	log = log.WithFields(logger.Fields{"subscriber": sub.id})

	initial, err := json.Marshal(models.NewConfigEvent(s.registry.Current()))
	if err != nil {
		log.WithError(err).Error("failed to serialize initial config event")
		_ = sub.Close()
		return
	}
	if err := sub.Send(initial); err != nil {
		log.WithError(err).Warn("failed to send initial config event")
		_ = sub.Close()
		return
	}

	s.hub.Register(sub)
	log.Info("subscriber connected")

	defer func() {
		s.hub.Unregister(sub.id)
		_ = sub.Close()
		log.Info("subscriber disconnected")
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		log.WithFields(logger.Fields{"message": string(msg)}).Warn("unexpected message on push-only channel")
	}
}
