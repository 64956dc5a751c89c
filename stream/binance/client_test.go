package binance

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// venueStub is a combined-stream endpoint double. It acks every control
// frame and exposes the server-side connection so tests can push payloads.
type venueStub struct {
	ts       *httptest.Server
	requests chan request
	conns    chan *websocket.Conn
}

func newVenueStub(t *testing.T) *venueStub {
	t.Helper()
	stub := &venueStub{
		requests: make(chan request, 16),
		conns:    make(chan *websocket.Conn, 1),
	}

	upgrader := websocket.Upgrader{}
	stub.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		stub.conns <- conn

		for {
			var req request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			ack := map[string]interface{}{"result": nil, "id": req.ID}
			if err := conn.WriteJSON(ack); err != nil {
				return
			}
			stub.requests <- req
		}
	}))
	t.Cleanup(stub.ts.Close)

	return stub
}

func (v *venueStub) url() string {
	return "ws" + strings.TrimPrefix(v.ts.URL, "http")
}

func (v *venueStub) nextRequest(t *testing.T) request {
	t.Helper()
	select {
	case req := <-v.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for control frame")
		return request{}
	}
}

func (v *venueStub) serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-v.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func newConnectedClient(t *testing.T, stub *venueStub) *Client {
	t.Helper()
	c := NewClient(stub.url(), time.Second, time.Minute)
	require.NoError(t, c.Connect())
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestSubscribeSendsControlFrameAndDispatchesPayloads(t *testing.T) {
	stub := newVenueStub(t)
	c := newConnectedClient(t, stub)

	received := make(chan []byte, 1)
	sub, err := c.Subscribe("btcusdt@miniTicker", func(payload []byte) {
		received <- payload
	})
	require.NoError(t, err)
	assert.Equal(t, "btcusdt@miniTicker", sub.Topic)

	req := stub.nextRequest(t)
	assert.Equal(t, "SUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@miniTicker"}, req.Params)

	server := stub.serverConn(t)
	frame := `{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","c":"65000.5","o":"64000"}}`
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(frame)))

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"e":"24hrMiniTicker","c":"65000.5","o":"64000"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the payload")
	}
}

func TestPayloadsForUnknownTopicsAreIgnored(t *testing.T) {
	stub := newVenueStub(t)
	c := newConnectedClient(t, stub)

	received := make(chan []byte, 1)
	_, err := c.Subscribe("btcusdt@miniTicker", func(payload []byte) {
		received <- payload
	})
	require.NoError(t, err)
	stub.nextRequest(t)

	server := stub.serverConn(t)
	require.NoError(t, server.WriteMessage(websocket.TextMessage,
		[]byte(`{"stream":"ethusdt@miniTicker","data":{"e":"24hrMiniTicker"}}`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage,
		[]byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker"}}`)))

	select {
	case payload := <-received:
		// only the subscribed topic's payload came through
		assert.Contains(t, string(payload), "24hrMiniTicker")
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the payload")
	}
	assert.Empty(t, received)
}

func TestDuplicateSubscribeFails(t *testing.T) {
	stub := newVenueStub(t)
	c := newConnectedClient(t, stub)

	_, err := c.Subscribe("btcusdt@depth@100ms", func([]byte) {})
	require.NoError(t, err)

	_, err = c.Subscribe("btcusdt@depth@100ms", func([]byte) {})
	assert.Error(t, err)
}

func TestUnsubscribeSendsControlFrame(t *testing.T) {
	stub := newVenueStub(t)
	c := newConnectedClient(t, stub)

	sub, err := c.Subscribe("btcusdt@miniTicker", func([]byte) {})
	require.NoError(t, err)
	stub.nextRequest(t)

	require.NoError(t, sub.Unsubscribe())

	req := stub.nextRequest(t)
	assert.Equal(t, "UNSUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@miniTicker"}, req.Params)
}

func TestSubscribeBeforeConnectFails(t *testing.T) {
	c := NewClient("ws://127.0.0.1:0", time.Second, time.Minute)
	_, err := c.Subscribe("btcusdt@miniTicker", func([]byte) {})
	assert.Error(t, err)
}

func TestDisconnectIsIdempotentAndStopsSubscriptions(t *testing.T) {
	stub := newVenueStub(t)
	c := newConnectedClient(t, stub)

	sub, err := c.Subscribe("btcusdt@miniTicker", func([]byte) {})
	require.NoError(t, err)
	stub.nextRequest(t)

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())

	// releasing a subscription after disconnect is a quiet no-op
	assert.NoError(t, sub.Unsubscribe())

	_, err = c.Subscribe("ethusdt@miniTicker", func([]byte) {})
	assert.Error(t, err)
}
