package broadcast

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var hubMeter = otel.Meter("github.com/Additional-Code/auctionroom/broadcast")

// ErrHubClosed is returned when subscribing after shutdown.
var ErrHubClosed = errors.New("broadcast hub closed")

type room struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// Hub fans events out to the subscribers of each auction room. Publishing to
// a room holds the room lock, so every member observes the room's events in
// publish order and membership changes never interleave with a delivery.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	joined  map[*Subscriber]map[string]struct{}
	closed  bool
	logger  *zap.Logger
	metrics hubMetrics
}

type hubMetrics struct {
	published metric.Int64Counter
	evicted   metric.Int64Counter
	members   metric.Int64UpDownCounter
}

// NewHub builds an empty hub. A nil logger is replaced with a no-op one.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		rooms:  make(map[string]*room),
		joined: make(map[*Subscriber]map[string]struct{}),
		logger: logger.Named("broadcast"),
	}
	h.metrics.published, _ = hubMeter.Int64Counter("broadcast.events.published",
		metric.WithDescription("Events published to auction rooms"))
	h.metrics.evicted, _ = hubMeter.Int64Counter("broadcast.subscribers.evicted",
		metric.WithDescription("Subscribers dropped for a full queue"))
	h.metrics.members, _ = hubMeter.Int64UpDownCounter("broadcast.room.members",
		metric.WithDescription("Active auction room memberships"))
	return h
}

// NewLifecycleHub provides a hub that closes every subscriber on shutdown.
func NewLifecycleHub(lc fx.Lifecycle, logger *zap.Logger) *Hub {
	h := NewHub(logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			h.Close()
			return nil
		},
	})
	return h
}

// Subscribe adds sub to the auction room. Joining twice is a no-op.
func (h *Hub) Subscribe(auctionID string, sub *Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	r, ok := h.rooms[auctionID]
	if !ok {
		r = &room{subs: make(map[*Subscriber]struct{})}
		h.rooms[auctionID] = r
	}

	r.mu.Lock()
	_, already := r.subs[sub]
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	if already {
		return nil
	}

	rooms, ok := h.joined[sub]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[sub] = rooms
	}
	rooms[auctionID] = struct{}{}
	h.addMembers(auctionID, 1)
	return nil
}

// Unsubscribe removes sub from the auction room.
func (h *Hub) Unsubscribe(auctionID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(auctionID, sub)
}

// UnsubscribeAll removes sub from every room it joined.
func (h *Hub) UnsubscribeAll(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for auctionID := range h.joined[sub] {
		h.leaveLocked(auctionID, sub)
	}
}

func (h *Hub) leaveLocked(auctionID string, sub *Subscriber) {
	r, ok := h.rooms[auctionID]
	if !ok {
		return
	}
	r.mu.Lock()
	_, member := r.subs[sub]
	delete(r.subs, sub)
	empty := len(r.subs) == 0
	r.mu.Unlock()

	if empty {
		delete(h.rooms, auctionID)
	}
	if rooms, ok := h.joined[sub]; ok {
		delete(rooms, auctionID)
		if len(rooms) == 0 {
			delete(h.joined, sub)
		}
	}
	if member {
		h.addMembers(auctionID, -1)
	}
}

// Publish delivers ev to the current members of its room and returns the
// number of subscribers that accepted it. Members whose queue is full are
// evicted and must re-fetch state through the synchronous read path.
func (h *Hub) Publish(ev Event) int {
	frame, err := ev.Encode()
	if err != nil {
		h.logger.Error("encode event", zap.String("event", string(ev.Kind)), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	r, ok := h.rooms[ev.AuctionID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	var delivered int
	var dropped []*Subscriber
	r.mu.Lock()
	for sub := range r.subs {
		if sub.enqueue(frame) {
			delivered++
			continue
		}
		dropped = append(dropped, sub)
	}
	r.mu.Unlock()

	if h.metrics.published != nil {
		h.metrics.published.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", string(ev.Kind))))
	}

	for _, sub := range dropped {
		if sub.Evicted() {
			h.logger.Warn("subscriber evicted", zap.String("subscriber", sub.ID()), zap.String("auction_id", ev.AuctionID))
			if h.metrics.evicted != nil {
				h.metrics.evicted.Add(context.Background(), 1)
			}
		}
		h.UnsubscribeAll(sub)
	}
	return delivered
}

// Members returns the number of subscribers in the auction room.
func (h *Hub) Members(auctionID string) int {
	h.mu.RLock()
	r, ok := h.rooms[auctionID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Close drops every room and closes every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.joined {
		sub.Close()
	}
	h.rooms = make(map[string]*room)
	h.joined = make(map[*Subscriber]map[string]struct{})
}

func (h *Hub) addMembers(_ string, n int64) {
	if h.metrics.members == nil {
		return
	}
	h.metrics.members.Add(context.Background(), n)
}
