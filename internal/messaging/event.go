package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Domain event types emitted on the auction topic.
const (
	EventAuctionCreated  = "auction.created"
	EventAuctionExtended = "auction.extended"
	EventAuctionClosed   = "auction.closed"
	EventBidAccepted     = "bid.accepted"
)

// HeaderEventType carries the event type so consumers can route without
// decoding the body.
const HeaderEventType = "event-type"

// Envelope wraps every domain event published on the bus.
type Envelope struct {
	Type       string          `json:"type"`
	AuctionID  string          `json:"auctionId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// PublishEvent encodes payload in an Envelope keyed by auction id, so all
// events of one auction land on the same partition in order.
func PublishEvent(ctx context.Context, client Client, eventType, auctionID string, occurredAt time.Time, payload any) error {
	if client == nil {
		return errors.New("messaging client is nil")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	body, err := json.Marshal(Envelope{
		Type:       eventType,
		AuctionID:  auctionID,
		OccurredAt: occurredAt.UTC(),
		Payload:    raw,
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", eventType, err)
	}
	return client.Publish(ctx, []byte(auctionID), body, map[string]string{HeaderEventType: eventType})
}

// DecodeEnvelope parses a message value produced by PublishEvent.
func DecodeEnvelope(msg Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		env.Type = msg.Headers[HeaderEventType]
	}
	if env.Type == "" {
		return Envelope{}, errors.New("event type is missing")
	}
	return env, nil
}
