package models

// Event type discriminators on the subscriber wire.
const (
	EventTypeConfig = "config"
	EventTypePrice  = "priceUpdate"
	EventTypeDepth  = "depthUpdate"
)

// ConfigEvent tells subscribers which trading pair the gateway tracks.
// It is the first message every new subscriber receives and is broadcast
// again on every pair switch.
type ConfigEvent struct {
	Type string `json:"type"`
	Pair string `json:"pair"`
}

func NewConfigEvent(pair string) ConfigEvent {
	return ConfigEvent{Type: EventTypeConfig, Pair: pair}
}

// PriceEvent carries the latest price derived from the upstream mini-ticker
// feed. Price and ChangePercent are fixed two-decimal strings.
type PriceEvent struct {
	Type          string `json:"type"`
	Pair          string `json:"pair"`
	Price         string `json:"price"`
	ChangePercent string `json:"changePercent"`
	Timestamp     int64  `json:"timestamp"`
}

// DepthLevel is one price level as [price, quantity], both rendered the way
// the venue quotes them.
type DepthLevel [2]string

// DepthEvent carries an order book diff from the upstream depth feed.
type DepthEvent struct {
	Type string       `json:"type"`
	Pair string       `json:"pair"`
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}

// MiniTickerMessage is the payload of the venue's 24hrMiniTicker stream.
type MiniTickerMessage struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	OpenPrice string `json:"o"`
}

// DepthUpdateMessage is the payload of the venue's diff depth stream.
type DepthUpdateMessage struct {
	Event         string       `json:"e"`
	EventTime     int64        `json:"E"`
	Symbol        string       `json:"s"`
	FirstUpdateID int64        `json:"U"`
	FinalUpdateID int64        `json:"u"`
	Bids          []DepthLevel `json:"b"`
	Asks          []DepthLevel `json:"a"`
}

// StreamMessage is the discriminator envelope used to classify a raw
// upstream payload before full decoding. EventTime must stay declared next
// to Event: json matches keys case-insensitively unless an exact-match
// field exists, so without it the numeric "E" key every venue payload
// carries would bind to Event and fail the decode.
type StreamMessage struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
}
