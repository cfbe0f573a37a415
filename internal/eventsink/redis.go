package eventsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/shootao/jitterbuf/internal/jitterbuf"
)

// DefaultChannel is the Redis pub/sub channel RedisEventSink publishes to
// when none is specified — the single shared event-base identifier
// referenced in spec.md §9 ("Global state"), trivially encoded as a
// constant rather than a registry.
const DefaultChannel = "jitterbuf.state-events"

// wireEvent is the JSON payload published to the channel. Field names are
// snake_case to match the wire conventions the rest of the corpus's
// Redis-backed services use.
type wireEvent struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// RedisEventSink publishes jitterbuf.StateEvent values to a Redis pub/sub
// channel. Posting is best-effort: the caller (jitterbuf.Buffer) already
// bounds the context with a short timeout and logs+ignores any error this
// returns, per spec.md §6.
type RedisEventSink struct {
	client  redis.Cmdable
	channel string
}

// NewRedisEventSink wraps client (either *redis.Client or
// *redis.ClusterClient, both satisfying redis.Cmdable) to publish on
// channel. An empty channel defaults to DefaultChannel.
func NewRedisEventSink(client redis.Cmdable, channel string) *RedisEventSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisEventSink{client: client, channel: channel}
}

// PostStateEvent implements jitterbuf.EventSink.
func (s *RedisEventSink) PostStateEvent(ctx context.Context, event jitterbuf.StateEvent) error {
	payload, err := json.Marshal(wireEvent{
		Name: event.Name,
		From: event.From.String(),
		To:   event.To.String(),
	})
	if err != nil {
		return fmt.Errorf("eventsink: marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("eventsink: publish: %w", err)
	}
	return nil
}
