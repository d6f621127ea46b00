package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// DefaultChannel is the redis pub/sub channel stroke events travel on.
const DefaultChannel = "strokes"

// Redis relays events through a redis channel so that every replica's local subscribers
// see inserts and deletes made on any replica.
type Redis struct {
	hub     *Hub
	rdb     *redis.Client
	channel string
	pubsub  *redis.PubSub
	done    chan struct{}
}

var _ Bus = (*Redis)(nil)

// NewRedis subscribes to channel and starts relaying. The subscription is confirmed
// before it returns, so nothing published afterwards is missed.
func NewRedis(ctx context.Context, rdb *redis.Client, channel string) (*Redis, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	r := &Redis{hub: NewHub(), rdb: rdb, channel: channel, pubsub: pubsub, done: make(chan struct{})}
	go r.relay()
	return r, nil
}

func (r *Redis) relay() {
	defer close(r.done)
	for msg := range r.pubsub.Channel() {
		var ev stroke.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			slog.Error("skipping malformed bus message", "err", err)
			continue
		}
		r.hub.Broadcast(ev)
	}
}

func (r *Redis) Publish(ctx context.Context, ev stroke.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe() *Subscriber {
	return r.hub.Subscribe()
}

// Close stops relaying and closes every local subscriber. The redis client is left open.
func (r *Redis) Close() error {
	err := r.pubsub.Close()
	<-r.done
	_ = r.hub.Close()
	return err
}
