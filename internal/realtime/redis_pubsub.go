package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "coaching:"
	publishTimeout = 5 * time.Second
)

// RedisPubSub fans room messages out across horizontally scaled instances.
// Each coaching room maps to one Redis channel carrying full message
// envelopes.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a pub/sub bridge over an existing Redis client.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// Publish sends a room message to the room's Redis channel.
func (r *RedisPubSub) Publish(sessionID string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal room message: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+sessionID, body).Err()
}

// Subscribe listens on a room's channel and calls handler for each message.
// Returns a cancel function that stops the subscription.
func (r *RedisPubSub) Subscribe(sessionID string, handler func(msg Message)) (cancel func(), err error) {
	channel := channelPrefix + sessionID
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					r.logger.Warn("invalid room message on channel",
						zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(msg)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
