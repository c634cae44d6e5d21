package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a server-to-client frame.
type Kind string

const (
	KindUpdateBids      Kind = "update_bids"
	KindAuctionExtended Kind = "auction_extended"
	KindError           Kind = "error"
)

// Event is the wire envelope pushed to auction-room subscribers.
type Event struct {
	Kind      Kind            `json:"event"`
	AuctionID string          `json:"auctionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an event for the given auction room.
func NewEvent(kind Kind, auctionID string, data any) (Event, error) {
	ev := Event{Kind: kind, AuctionID: auctionID}
	if data == nil {
		return ev, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	ev.Data = raw
	return ev, nil
}

// Encode renders the event as a JSON frame.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a frame produced by Encode.
func Decode(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, err
	}
	if ev.Kind == "" {
		return Event{}, errors.New("event kind is required")
	}
	return ev, nil
}
