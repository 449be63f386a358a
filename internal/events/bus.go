package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/trickplay/internal/utils"
)

// EventBus defines the interface for the event bus system
type EventBus interface {
	// Publish delivers an event to every matching subscription
	Publish(event Event)

	// Subscribe registers a handler for events matching the filter
	Subscribe(filter EventFilter, handler EventHandler) *Subscription

	// SubscribeChan delivers matching events on a buffered channel. Events
	// that do not fit in the buffer are dropped. The returned func
	// unsubscribes and closes the channel.
	SubscribeChan(filter EventFilter, buffer int) (<-chan Event, func())

	// Unsubscribe removes a subscription
	Unsubscribe(subscriptionID string) error

	// GetSubscriptions returns all active subscriptions
	GetSubscriptions() []*Subscription
}

type eventBus struct {
	logger hclog.Logger

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
}

// NewEventBus creates a new in-process event bus
func NewEventBus(logger hclog.Logger) EventBus {
	return &eventBus{
		logger:        logger.Named("events"),
		subscriptions: make(map[string]*Subscription),
	}
}

// Publish delivers an event synchronously to matching handlers
func (eb *eventBus) Publish(event Event) {
	if event.ID == "" {
		event.ID = utils.GenerateUUID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscriptions {
		if !MatchesFilter(event, sub.Filter) {
			continue
		}
		atomic.AddInt64(&sub.TriggerCount, 1)
		sub.Handler(event)
	}

	eb.logger.Trace("event published", "type", event.Type, "job_id", event.JobID)
}

// Subscribe subscribes to events matching the filter
func (eb *eventBus) Subscribe(filter EventFilter, handler EventHandler) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscription{
		ID:      utils.GenerateUUID(),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}
	eb.subscriptions[sub.ID] = sub

	eb.logger.Debug("subscription added", "subscription_id", sub.ID, "job_id", filter.JobID)
	return sub
}

// SubscribeChan subscribes with a channel-backed handler
func (eb *eventBus) SubscribeChan(filter EventFilter, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	var closed bool
	var mu sync.Mutex

	sub := eb.Subscribe(filter, func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- event:
		default:
			eb.logger.Warn("subscriber buffer full, dropping event", "type", event.Type, "job_id", event.JobID)
		}
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = eb.Unsubscribe(sub.ID)
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel
}

// Unsubscribe removes a subscription
func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, ok := eb.subscriptions[subscriptionID]; !ok {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)
	return nil
}

// GetSubscriptions returns all active subscriptions
func (eb *eventBus) GetSubscriptions() []*Subscription {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	subs := make([]*Subscription, 0, len(eb.subscriptions))
	for _, sub := range eb.subscriptions {
		subs = append(subs, sub)
	}
	return subs
}
