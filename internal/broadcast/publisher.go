package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/config"
)

// Publisher sends room events to every subscriber, local or remote.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Module provides the hub and the configured publisher.
var Module = fx.Provide(NewLifecycleHub, NewPublisher)

// NewPublisher selects the local or redis relay publisher.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, hub *Hub, logger *zap.Logger) (Publisher, error) {
	switch cfg.Broadcast.Driver {
	case "local":
		return LocalPublisher{Hub: hub}, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		relay := NewRedisRelay(client, cfg.Broadcast.ChannelPrefix, hub, logger)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("ping redis: %w", err)
				}
				return relay.Start(ctx)
			},
			OnStop: func(context.Context) error {
				relay.Stop()
				return client.Close()
			},
		})
		return relay, nil
	default:
		return nil, fmt.Errorf("unsupported broadcast driver: %s", cfg.Broadcast.Driver)
	}
}

// LocalPublisher delivers straight to the in-process hub.
type LocalPublisher struct {
	Hub *Hub
}

func (p LocalPublisher) Publish(_ context.Context, ev Event) error {
	p.Hub.Publish(ev)
	return nil
}

// RedisRelay publishes events on a per-auction redis channel and feeds every
// message received on the pattern subscription into the local hub. One
// subscription per process keeps the per-channel order redis guarantees.
type RedisRelay struct {
	client *goredis.Client
	prefix string
	hub    *Hub
	logger *zap.Logger

	mu     sync.Mutex
	pubsub *goredis.PubSub
	done   chan struct{}
}

// NewRedisRelay wires a relay over an existing redis client.
func NewRedisRelay(client *goredis.Client, prefix string, hub *Hub, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client: client,
		prefix: prefix,
		hub:    hub,
		logger: logger.Named("broadcast.redis"),
	}
}

// Channel returns the redis channel for the auction room.
func (r *RedisRelay) Channel(auctionID string) string {
	return r.prefix + auctionID
}

// Publish sends ev to the auction channel.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.Channel(ev.AuctionID), frame).Err()
}

// Start subscribes to every auction channel and begins relaying. It returns
// once redis has confirmed the subscription.
func (r *RedisRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return nil
	}

	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s*: %w", r.prefix, err)
	}
	r.pubsub = pubsub
	r.done = make(chan struct{})

	go r.relay(pubsub.Channel(), r.done)
	r.logger.Info("broadcast relay subscribed", zap.String("pattern", r.prefix+"*"))
	return nil
}

func (r *RedisRelay) relay(messages <-chan *goredis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		ev, err := Decode([]byte(msg.Payload))
		if err != nil {
			r.logger.Warn("drop malformed relay message", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if ev.AuctionID == "" {
			ev.AuctionID = strings.TrimPrefix(msg.Channel, r.prefix)
		}
		r.hub.Publish(ev)
	}
}

// Stop closes the subscription and waits for the relay loop to exit.
func (r *RedisRelay) Stop() {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub, r.done = nil, nil
	r.mu.Unlock()

	if pubsub == nil {
		return
	}
	if err := pubsub.Close(); err != nil {
		r.logger.Warn("close relay subscription", zap.Error(err))
	}
	<-done
}
