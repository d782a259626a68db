package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"practicehub/models"
)

// ChangeHandler receives decoded change events of one subscription.
// Calls for one subscription never overlap.
type ChangeHandler func(ctx context.Context, ev models.ChangeEvent)

// SubscriptionSpec selects the events of one table. OrganizationID filters
// the activities table; the participants table carries no organization
// column and is delivered unfiltered.
type SubscriptionSpec struct {
	Table          string
	OrganizationID string
}

// Subscription an open change subscription
type Subscription interface {
	Close() error
}

// ChangePublisher publishes committed row changes
type ChangePublisher interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
}

// ChangeSubscriber opens change subscriptions
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, spec SubscriptionSpec, handler ChangeHandler) (Subscription, error)
}

// ChangeFeed both ends of the realtime channel
type ChangeFeed interface {
	ChangePublisher
	ChangeSubscriber
}

// ChannelName returns the pub/sub channel carrying the events of a table.
func ChannelName(prefix, table, orgID string) string {
	if table == models.TableGroupActivities {
		return fmt.Sprintf("%s%s:org:%s", prefix, table, orgID)
	}
	return prefix + table
}

// RedisChangeFeed change feed over Redis pub/sub
type RedisChangeFeed struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

// NewRedisChangeFeed creates a Redis change feed
func NewRedisChangeFeed(rdb *redis.Client, prefix string, log *zap.Logger) *RedisChangeFeed {
	return &RedisChangeFeed{rdb: rdb, prefix: prefix, log: log}
}

// Publish sends ev to its table channel.
func (f *RedisChangeFeed) Publish(ctx context.Context, ev models.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	channel := ChannelName(f.prefix, ev.Table, ev.OrganizationID)
	if err := f.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription and waits for Redis to confirm it.
func (f *RedisChangeFeed) Subscribe(ctx context.Context, spec SubscriptionSpec, handler ChangeHandler) (Subscription, error) {
	channel := ChannelName(f.prefix, spec.Table, spec.OrganizationID)
	ps := f.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{ps: ps, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			var ev models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.log.Warn("decode change event", zap.String("channel", channel), zap.Error(err))
				continue
			}
			handler(subCtx, ev)
		}
	}()

	f.log.Info("subscribed", zap.String("channel", channel))
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Close unsubscribes and waits for the delivery goroutine to exit.
// It must not be called from inside the subscription's handler.
func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}
