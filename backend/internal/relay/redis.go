// Package relay fans board events out across server instances over Redis
// pub/sub, so clients of one board connected to different processes still
// see each other's edits.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"branchboard/backend/internal/constants"
	"branchboard/backend/pkg/logger"
)

// Envelope is the message published for one broadcast
type Envelope struct {
	Origin  string          `json:"origin"`
	BoardID string          `json:"board_id"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Deliverer receives frames published by other instances
type Deliverer interface {
	DeliverRemote(boardID, excludeID string, payload []byte)
}

// RedisRelay publishes local broadcasts and subscribes to everyone else's
type RedisRelay struct {
	client     *redis.Client
	instanceID string
	prefix     string
	logger     *zap.Logger
}

// NewRedisRelay connects to redisURL and checks the connection
func NewRedisRelay(redisURL, instanceID string) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisRelayWithClient(client, instanceID), nil
}

// NewRedisRelayWithClient creates a relay from an existing Redis client
func NewRedisRelayWithClient(client *redis.Client, instanceID string) *RedisRelay {
	return &RedisRelay{
		client:     client,
		instanceID: instanceID,
		prefix:     constants.RelayChannelPrefix,
		logger:     logger.Get().With(zap.String("instance_id", instanceID)),
	}
}

func (r *RedisRelay) channel(boardID string) string {
	return r.prefix + boardID
}

// Publish sends payload to the other instances serving boardID
func (r *RedisRelay) Publish(ctx context.Context, boardID, excludeID string, payload []byte) error {
	data, err := json.Marshal(Envelope{
		Origin:  r.instanceID,
		BoardID: boardID,
		Exclude: excludeID,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel(boardID), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel(boardID), err)
	}
	return nil
}

// Subscribe starts listening on every board channel. It returns once the
// subscription is confirmed by the server.
func (r *RedisRelay) Subscribe(ctx context.Context) (*Listener, error) {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s*: %w", r.prefix, err)
	}
	return &Listener{relay: r, pubsub: pubsub}, nil
}

// Close closes the Redis connection
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Listener is an active subscription
type Listener struct {
	relay  *RedisRelay
	pubsub *redis.PubSub
}

// Run hands every foreign envelope to d until ctx ends
func (l *Listener) Run(ctx context.Context, d Deliverer) error {
	defer l.pubsub.Close()

	messages := l.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("relay subscription closed")
			}
			l.handle(msg, d)
		}
	}
}

func (l *Listener) handle(msg *redis.Message, d Deliverer) {
	var env Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		l.relay.logger.Warn("Dropping malformed relay envelope",
			zap.String("channel", msg.Channel),
			zap.Error(err),
		)
		return
	}
	if env.Origin == l.relay.instanceID {
		return
	}

	boardID := env.BoardID
	if boardID == "" {
		boardID = strings.TrimPrefix(msg.Channel, l.relay.prefix)
	}
	d.DeliverRemote(boardID, env.Exclude, env.Payload)
}
