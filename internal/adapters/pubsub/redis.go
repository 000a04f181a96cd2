// Package pubsub fans room lifecycle events out to Redis channels.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// publisher is the slice of the redis client this package needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher implements core.EventPublisher on Redis PUBLISH.
type RedisPublisher struct {
	client publisher
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("module", "pubsub").Str("address", cfg.Address).Msg("redis publisher ready")
	return &RedisPublisher{client: client}, nil
}

// Channel is where events of one room are published.
func Channel(room domain.RoomID) string {
	return "roomcast:room:" + string(room) + ":events"
}

type message struct {
	Room  domain.RoomID `json:"room"`
	Event string        `json:"event"`
	Data  any           `json:"data,omitempty"`
	At    int64         `json:"at"`
}

func encode(room domain.RoomID, ev core.Event) ([]byte, error) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return json.Marshal(message{Room: room, Event: ev.Event, Data: ev.Data, At: at.UnixMilli()})
}

func (p *RedisPublisher) Publish(ctx context.Context, room domain.RoomID, ev core.Event) error {
	data, err := encode(room, ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.Publish(ctx, Channel(room), data).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
