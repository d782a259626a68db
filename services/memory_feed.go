package services

import (
	"context"
	"sync"

	"practicehub/models"
)

// MemoryChangeFeed in-process change feed. Publish delivers synchronously on
// the caller's goroutine, so a write is reconciled before it returns.
type MemoryChangeFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]*memorySubscription
}

// NewMemoryChangeFeed creates an empty in-process feed
func NewMemoryChangeFeed() *MemoryChangeFeed {
	return &MemoryChangeFeed{subs: make(map[string]map[int]*memorySubscription)}
}

// Publish delivers ev to every subscription of its channel.
func (f *MemoryChangeFeed) Publish(ctx context.Context, ev models.ChangeEvent) error {
	channel := ChannelName("", ev.Table, ev.OrganizationID)
	f.mu.RLock()
	targets := make([]*memorySubscription, 0, len(f.subs[channel]))
	for _, s := range f.subs[channel] {
		targets = append(targets, s)
	}
	f.mu.RUnlock()

	for _, s := range targets {
		s.deliver(ctx, ev)
	}
	return nil
}

// Subscribe registers handler for the spec's channel.
func (f *MemoryChangeFeed) Subscribe(ctx context.Context, spec SubscriptionSpec, handler ChangeHandler) (Subscription, error) {
	channel := ChannelName("", spec.Table, spec.OrganizationID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s := &memorySubscription{feed: f, channel: channel, id: f.nextID, handler: handler}
	if f.subs[channel] == nil {
		f.subs[channel] = make(map[int]*memorySubscription)
	}
	f.subs[channel][s.id] = s
	return s, nil
}

// Subscribers number of open subscriptions on the channel of spec.
func (f *MemoryChangeFeed) Subscribers(spec SubscriptionSpec) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[ChannelName("", spec.Table, spec.OrganizationID)])
}

func (f *MemoryChangeFeed) remove(s *memorySubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[s.channel], s.id)
	if len(f.subs[s.channel]) == 0 {
		delete(f.subs, s.channel)
	}
}

type memorySubscription struct {
	feed    *MemoryChangeFeed
	channel string
	id      int
	handler ChangeHandler

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) deliver(ctx context.Context, ev models.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handler(ctx, ev)
}

// Close removes the subscription; later events are not delivered.
func (s *memorySubscription) Close() error {
	s.feed.remove(s)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
