package models

import (
	"encoding/json"
	"testing"
)

func TestConfigEventWireShape(t *testing.T) {
	data, err := json.Marshal(NewConfigEvent("BTCUSDT"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"config","pair":"BTCUSDT"}`
	if string(data) != want {
		t.Errorf("wire shape = %s, want %s", data, want)
	}
}

// The venue sends both a lowercase "e" (event name) and an uppercase "E"
// (event time) key. json falls back to case-insensitive matching, so the
// discriminator must declare both or the numeric "E" lands on Event and
// fails the decode.
func TestStreamMessageDecodesBothCaseKeys(t *testing.T) {
	var msg StreamMessage
	payload := `{"e":"24hrMiniTicker","E":1700000000123,"s":"BTCUSDT","c":"65000.50","o":"64000.00","h":"65100.00","l":"63900.00","v":"1200.5","q":"77721000.00"}`
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Event != "24hrMiniTicker" {
		t.Errorf("event = %q, want 24hrMiniTicker", msg.Event)
	}
	if msg.EventTime != 1700000000123 {
		t.Errorf("event time = %d, want 1700000000123", msg.EventTime)
	}
}

func TestDepthLevelDecodesVenuePairs(t *testing.T) {
	var msg DepthUpdateMessage
	payload := `{"e":"depthUpdate","E":1700000000123,"s":"BTCUSDT","U":157,"u":160,"b":[["65000.10","0.5"]],"a":[["65001.00","1.2"]]}`
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Event != "depthUpdate" || msg.Symbol != "BTCUSDT" || msg.EventTime != 1700000000123 {
		t.Errorf("unexpected envelope: %+v", msg)
	}
	if msg.FirstUpdateID != 157 || msg.FinalUpdateID != 160 {
		t.Errorf("unexpected update ids: %+v", msg)
	}
	if len(msg.Bids) != 1 || msg.Bids[0][0] != "65000.10" || msg.Bids[0][1] != "0.5" {
		t.Errorf("unexpected bids: %+v", msg.Bids)
	}
}
