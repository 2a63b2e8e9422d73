package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProvider implements ChannelProvider over Redis pub/sub.
type RedisProvider struct {
	rdb *redis.Client
}

// NewRedisProvider returns a provider backed by the given client.
func NewRedisProvider(rdb *redis.Client) *RedisProvider {
	return &RedisProvider{rdb: rdb}
}

// OpenChannel subscribes to topic and pumps every message into onEvent.
// The subscription is confirmed before returning so a nil error means
// events will actually flow.
func (p *RedisProvider) OpenChannel(ctx context.Context, topic string, onEvent func()) (Handle, error) {
	sub := p.rdb.Subscribe(ctx, topic)

	// Wait for the subscription confirmation; without this a broken broker
	// connection would look like a healthy but silent channel.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %q: %w", topic, err)
	}

	go func() {
		for range sub.Channel() {
			onEvent()
		}
	}()

	return sub, nil
}

// Publisher announces match-set changes on the shared topic. Both the
// apply side effect and the resync scheduler publish through it; the
// backend matching pipeline publishes the same event shape.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher returns a Publisher on the given client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// AnnounceMatchChange publishes an invalidation event. The payload is
// informational only — subscribers re-fetch instead of reading it.
func (p *Publisher) AnnounceMatchChange(ctx context.Context, reason string) error {
	event, _ := json.Marshal(map[string]string{
		"type":   "EVENT_MATCHES_CHANGED",
		"reason": reason,
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err := p.rdb.Publish(ctx, MatchTopic, event).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", MatchTopic, err)
	}
	return nil
}
