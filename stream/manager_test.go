package stream_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickergate/models"
	"tickergate/stream"
)

// fakeClient records subscribe/unsubscribe calls in order and keeps the
// registered handlers so tests can inject upstream payloads.
type fakeClient struct {
	mu           sync.Mutex
	ops          []string
	handlers     map[string]stream.Handler
	failTopics   map[string]error
	disconnected int
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]stream.Handler{}}
}

func (f *fakeClient) Subscribe(topic string, h stream.Handler) (*stream.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTopics[topic]; ok {
		f.ops = append(f.ops, "fail "+topic)
		return nil, err
	}
	f.ops = append(f.ops, "sub "+topic)
	f.handlers[topic] = h
	return &stream.Subscription{
		Topic: topic,
		Unsubscribe: func() error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.ops = append(f.ops, "unsub "+topic)
			delete(f.handlers, topic)
			return nil
		},
	}, nil
}

func (f *fakeClient) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected++
	return nil
}

func (f *fakeClient) inject(topic string, payload string) {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if ok {
		h([]byte(payload))
	}
}

func (f *fakeClient) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (c *capturePublisher) Publish(event interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturePublisher) all() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}(nil), c.events...)
}

// currentPair is a settable stand-in for the registry's live value.
type currentPair struct {
	mu sync.Mutex
	v  string
}

func (c *currentPair) set(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

func (c *currentPair) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func newTestManager(t *testing.T) (*stream.Manager, *fakeClient, *capturePublisher, *currentPair) {
	t.Helper()
	client := newFakeClient()
	pub := &capturePublisher{}
	cur := &currentPair{}
	return stream.NewManager(client, pub, cur.get, "100ms"), client, pub, cur
}

func TestResubscribeBindsBothFeeds(t *testing.T) {
	m, client, _, _ := newTestManager(t)

	require.NoError(t, m.Resubscribe("BTCUSDT"))

	assert.Equal(t, []string{
		"sub btcusdt@miniTicker",
		"sub btcusdt@depth@100ms",
	}, client.opLog())
}

func TestResubscribeTearsDownBeforeSubscribing(t *testing.T) {
	m, client, _, _ := newTestManager(t)

	require.NoError(t, m.Resubscribe("BTCUSDT"))
	require.NoError(t, m.Resubscribe("ETHUSDT"))

	// per feed kind the old topic goes away before the new one is bound
	assert.Equal(t, []string{
		"sub btcusdt@miniTicker",
		"sub btcusdt@depth@100ms",
		"unsub btcusdt@miniTicker",
		"sub ethusdt@miniTicker",
		"unsub btcusdt@depth@100ms",
		"sub ethusdt@depth@100ms",
	}, client.opLog())
}

func TestResubscribeRestoresPreviousFeedsOnFailure(t *testing.T) {
	m, client, _, _ := newTestManager(t)

	require.NoError(t, m.Resubscribe("BTCUSDT"))

	client.mu.Lock()
	client.failTopics = map[string]error{"ethusdt@depth@100ms": errors.New("refused")}
	client.mu.Unlock()

	err := m.Resubscribe("ETHUSDT")
	require.Error(t, err)

	// previous pair's feeds were rebound after the aborted switch
	ops := client.opLog()
	require.GreaterOrEqual(t, len(ops), 2)
	assert.Equal(t, "sub btcusdt@depth@100ms", ops[len(ops)-1])
	assert.Equal(t, "sub btcusdt@miniTicker", ops[len(ops)-2])
}

func TestDisconnectAllIsIdempotent(t *testing.T) {
	m, client, _, _ := newTestManager(t)

	require.NoError(t, m.Resubscribe("BTCUSDT"))

	m.DisconnectAll()
	m.DisconnectAll()

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.handlers)
	assert.Equal(t, 2, client.disconnected)
}

func TestMiniTickerDerivation(t *testing.T) {
	m, client, pub, cur := newTestManager(t)
	cur.set("BTCUSDT")
	require.NoError(t, m.Resubscribe("BTCUSDT"))

	client.inject("btcusdt@miniTicker",
		`{"e":"24hrMiniTicker","E":1700000000123,"s":"BTCUSDT","c":"65000.5","o":"64000","h":"65100.0","l":"63900.0","v":"1200.5","q":"77721000.0"}`)

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.PriceEvent{
		Type:          models.EventTypePrice,
		Pair:          "BTCUSDT",
		Price:         "65000.50",
		ChangePercent: "1.56",
		Timestamp:     1700000000123,
	}, events[0])
}

func TestMiniTickerZeroOpenPrice(t *testing.T) {
	m, client, pub, cur := newTestManager(t)
	cur.set("NEWUSDT")
	require.NoError(t, m.Resubscribe("NEWUSDT"))

	client.inject("newusdt@miniTicker",
		`{"e":"24hrMiniTicker","E":1,"s":"NEWUSDT","c":"0.1234","o":"0","h":"0.13","l":"0.11","v":"10.0","q":"1.2"}`)

	events := pub.all()
	require.Len(t, events, 1)
	price := events[0].(models.PriceEvent)
	assert.Equal(t, "0.12", price.Price)
	assert.Equal(t, "0.00", price.ChangePercent)
}

func TestDepthUpdatePassthrough(t *testing.T) {
	m, client, pub, cur := newTestManager(t)
	cur.set("BTCUSDT")
	require.NoError(t, m.Resubscribe("BTCUSDT"))

	client.inject("btcusdt@depth@100ms",
		`{"e":"depthUpdate","E":1700000000456,"s":"BTCUSDT","U":157,"u":160,"b":[["64999.99","0.5"]],"a":[["65000.01","1.2"],["65001.00","0.3"]]}`)

	events := pub.all()
	require.Len(t, events, 1)
	depth := events[0].(models.DepthEvent)
	assert.Equal(t, models.EventTypeDepth, depth.Type)
	assert.Equal(t, "BTCUSDT", depth.Pair)
	assert.Equal(t, []models.DepthLevel{{"64999.99", "0.5"}}, depth.Bids)
	require.Len(t, depth.Asks, 2)
}

func TestStaleMessagesAreDropped(t *testing.T) {
	m, client, pub, cur := newTestManager(t)
	cur.set("BTCUSDT")
	require.NoError(t, m.Resubscribe("BTCUSDT"))

	// the registry moved on while this message was in flight
	cur.set("ETHUSDT")
	client.inject("btcusdt@miniTicker",
		`{"e":"24hrMiniTicker","E":1,"s":"BTCUSDT","c":"65000","o":"64000"}`)

	assert.Empty(t, pub.all())
}

// The venue always sends the uppercase "E" event-time key alongside the
// lowercase "e" event name; both full payload shapes must classify and
// publish, not fall into the malformed-drop path.
func TestFullVenuePayloadsAreClassified(t *testing.T) {
	m, client, pub, cur := newTestManager(t)
	cur.set("BTCUSDT")
	require.NoError(t, m.Resubscribe("BTCUSDT"))

	client.inject("btcusdt@miniTicker",
		`{"e":"24hrMiniTicker","E":1700000000123,"s":"BTCUSDT","c":"65000.50","o":"64000.00","h":"65100.00","l":"63900.00","v":"1200.5","q":"77721000.00"}`)
	client.inject("btcusdt@depth@100ms",
		`{"e":"depthUpdate","E":1700000000456,"s":"BTCUSDT","U":157,"u":160,"b":[["64999.99","0.5"]],"a":[["65000.01","1.2"]]}`)

	events := pub.all()
	require.Len(t, events, 2)
	assert.IsType(t, models.PriceEvent{}, events[0])
	assert.IsType(t, models.DepthEvent{}, events[1])
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	m, client, pub, cur := newTestManager(t)
	cur.set("BTCUSDT")
	require.NoError(t, m.Resubscribe("BTCUSDT"))

	client.inject("btcusdt@miniTicker", `{not json`)
	client.inject("btcusdt@miniTicker", `{"e":"24hrMiniTicker","c":"not-a-number","o":"64000"}`)
	client.inject("btcusdt@miniTicker", `{"e":"somethingElse"}`)

	assert.Empty(t, pub.all())
}
