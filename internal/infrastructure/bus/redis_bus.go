package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	groupChannelPrefix  = "roomhub:group:"
	directChannelPrefix = "roomhub:direct:"
)

// RedisGroupBus implements the group bus on Redis pub/sub. Group fan-out is a
// publish on the group's channel; direct delivery is a publish on the
// per-handle channel. Joining subscribes to both, so a session receives room
// broadcasts and messages addressed to its own connection on one stream.
type RedisGroupBus struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisGroupBus(client *redis.Client, logger *zap.SugaredLogger) ports.GroupBus {
	return &RedisGroupBus{
		client: client,
		logger: logger,
	}
}

func groupChannel(group string) string {
	return groupChannelPrefix + group
}

func directChannel(handle domain.ConnectionHandle) string {
	return directChannelPrefix + string(handle)
}

func (b *RedisGroupBus) Publish(ctx context.Context, group string, event ports.BusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal bus event: %w", err)
	}
	if err := b.client.Publish(ctx, groupChannel(group), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to group %s: %w", group, err)
	}
	return nil
}

func (b *RedisGroupBus) Send(ctx context.Context, handle domain.ConnectionHandle, event ports.BusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal bus event: %w", err)
	}
	if err := b.client.Publish(ctx, directChannel(handle), data).Err(); err != nil {
		return fmt.Errorf("failed to send to handle %s: %w", handle, err)
	}
	return nil
}

func (b *RedisGroupBus) Join(ctx context.Context, group string, handle domain.ConnectionHandle) (ports.Subscription, error) {
	pubsub := b.client.Subscribe(ctx, groupChannel(group), directChannel(handle))

	// Wait for the subscription to be active so presence writes that follow
	// the join cannot outrun it.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to join group %s: %w", group, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan ports.BusEvent, 16),
		logger: b.logger,
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	events    chan ports.BusEvent
	logger    *zap.SugaredLogger
	closeOnce sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var event ports.BusEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			s.logger.Warnw("dropping undecodable bus event",
				"channel", msg.Channel,
				"error", err,
			)
			continue
		}
		s.deliver(event)
	}
}

// deliver never blocks the pump. A session whose writer has already stopped
// draining Events() (write error, forced close) must not pin this goroutine
// until Close, so a full buffer loses the event, same as the in-memory bus.
func (s *redisSubscription) deliver(event ports.BusEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Warnw("dropping bus event for stalled subscriber",
			"kind", event.Kind,
		)
	}
}

func (s *redisSubscription) Events() <-chan ports.BusEvent {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
