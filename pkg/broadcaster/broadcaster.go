// Package broadcaster delivers progress snapshots to zero or more
// subscribers, keyed by channel name, grounded on the teacher's
// pkg/events/manager.go connection-manager pattern: subscriber ids are
// snapshotted under a read lock and sent to outside the lock so a slow or
// failing subscriber never blocks registration of new ones.
package broadcaster

import (
	"log/slog"
	"sync"
)

// Subscriber receives broadcast messages on a single channel. A
// subscriber that returns an error is removed from the channel's set.
type Subscriber interface {
	Deliver(message any) error
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(message any) error

func (f SubscriberFunc) Deliver(message any) error { return f(message) }

// Broadcaster fans progress events out to channel-keyed subscriber sets.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]Subscriber
	logger      *slog.Logger
}

// New builds an empty Broadcaster.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]Subscriber),
		logger:      logger,
	}
}

// Subscribe registers sub under id on channel. Re-subscribing with the
// same id replaces the prior subscriber.
func (b *Broadcaster) Subscribe(channel, id string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[channel]
	if !ok {
		set = make(map[string]Subscriber)
		b.subscribers[channel] = set
	}
	set[id] = sub
}

// Unsubscribe removes id from channel's subscriber set.
func (b *Broadcaster) Unsubscribe(channel, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subscribers[channel]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(b.subscribers, channel)
		}
	}
}

// Broadcast delivers message to every subscriber of channel. Delivery is
// best-effort: a subscriber whose Deliver returns an error is removed
// from the set. Delivery happens outside the lock so a slow subscriber
// cannot block Subscribe/Unsubscribe (spec §4.7).
func (b *Broadcaster) Broadcast(channel string, message any) {
	b.mu.RLock()
	set := b.subscribers[channel]
	ids := make([]string, 0, len(set))
	subs := make([]Subscriber, 0, len(set))
	for id, sub := range set {
		ids = append(ids, id)
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var failed []string
	for i, sub := range subs {
		if err := sub.Deliver(message); err != nil {
			b.logger.Warn("broadcast delivery failed, removing subscriber", "channel", channel, "subscriber_id", ids[i], "error", err)
			failed = append(failed, ids[i])
		}
	}

	if len(failed) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subscribers[channel]; ok {
		for _, id := range failed {
			delete(set, id)
		}
		if len(set) == 0 {
			delete(b.subscribers, channel)
		}
	}
}
