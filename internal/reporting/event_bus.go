package reporting

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"devctl/pkg/logging"
)

// EventFilter selects the events a subscription receives. A nil filter
// receives everything.
type EventFilter func(Event) bool

// EventSubscription is a buffered, ordered view of the bus.
type EventSubscription struct {
	ID      string
	Filter  EventFilter
	Channel chan Event
	closed  bool
	mu      sync.RWMutex
}

// Close closes the subscription. Closing twice is safe.
func (s *EventSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		if s.Channel != nil {
			close(s.Channel)
		}
		s.closed = true
	}
}

// IsClosed returns whether the subscription is closed
func (s *EventSubscription) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// offer hands event to a channel subscription without blocking. The read
// lock keeps Close from closing the channel mid-send.
func (s *EventSubscription) offer(event Event) (delivered bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.Channel <- event:
		return true
	default:
		return false
	}
}

// EventBus provides publish/subscribe functionality for events
type EventBus interface {
	// Publish publishes an event to all subscribers. It never blocks on a
	// slow subscriber.
	Publish(event Event)

	// SubscribeChannel creates a subscription with a channel. Events are
	// delivered in publish order; when the buffer is full they are dropped.
	SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription

	// Unsubscribe removes a subscription
	Unsubscribe(subscription *EventSubscription)

	// GetMetrics returns event bus metrics
	GetMetrics() EventBusMetrics

	// Close closes the event bus and all subscriptions
	Close()
}

// EventBusMetrics tracks event bus performance
type EventBusMetrics struct {
	TotalSubscriptions  int
	ActiveSubscriptions int
	EventsPublished     int64
	EventsDelivered     int64
	EventsDropped       int64
	LastEventTime       time.Time
	EventsByType        map[EventType]int64
}

// DefaultEventBus is the default implementation of EventBus
type DefaultEventBus struct {
	// publishMu serialises Publish so that channel subscribers observe
	// one global order.
	publishMu     sync.Mutex
	subscriptions map[string]*EventSubscription
	metrics       EventBusMetrics
	mu            sync.RWMutex
	closed        bool
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &DefaultEventBus{
		subscriptions: make(map[string]*EventSubscription),
		metrics: EventBusMetrics{
			EventsByType: make(map[EventType]int64),
		},
	}
}

// Publish publishes an event to all subscribers
func (eb *DefaultEventBus) Publish(event Event) {
	eb.publishMu.Lock()
	defer eb.publishMu.Unlock()

	eb.mu.RLock()
	if eb.closed {
		eb.mu.RUnlock()
		return
	}
	// Copy so the lock is not held during delivery
	subs := make([]*EventSubscription, 0, len(eb.subscriptions))
	for _, s := range eb.subscriptions {
		subs = append(subs, s)
	}
	eb.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, sub := range subs {
		if sub.IsClosed() {
			continue
		}
		if sub.Filter != nil && !sub.Filter(event) {
			continue
		}

		if sub.offer(event) {
			delivered++
		} else {
			dropped++
			logging.Debug("EventBus", "Subscription %s full, dropped %s", sub.ID, event.Type())
		}
	}

	eb.mu.Lock()
	eb.metrics.EventsPublished++
	eb.metrics.EventsByType[event.Type()]++
	eb.metrics.LastEventTime = event.Timestamp()
	eb.metrics.EventsDelivered += int64(delivered)
	eb.metrics.EventsDropped += int64(dropped)
	eb.mu.Unlock()
}

// SubscribeChannel creates a subscription with a channel of bufferSize.
func (eb *DefaultEventBus) SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription {
	sub := &EventSubscription{Filter: filter, Channel: make(chan Event, bufferSize)}
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}
	sub.ID = uuid.NewString() + "_sub"
	eb.subscriptions[sub.ID] = sub
	eb.metrics.TotalSubscriptions++
	eb.metrics.ActiveSubscriptions++
	return sub
}

// Unsubscribe removes a subscription
func (eb *DefaultEventBus) Unsubscribe(subscription *EventSubscription) {
	if subscription == nil {
		return
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscription.ID]; exists {
		subscription.Close()
		delete(eb.subscriptions, subscription.ID)
		eb.metrics.ActiveSubscriptions--
	}
}

// GetMetrics returns event bus metrics
func (eb *DefaultEventBus) GetMetrics() EventBusMetrics {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Return a copy to prevent external modification
	metrics := eb.metrics
	metrics.EventsByType = make(map[EventType]int64, len(eb.metrics.EventsByType))
	for k, v := range eb.metrics.EventsByType {
		metrics.EventsByType[k] = v
	}
	return metrics
}

// Close closes the event bus and all subscriptions
func (eb *DefaultEventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.closed = true
	for _, subscription := range eb.subscriptions {
		subscription.Close()
	}
	eb.subscriptions = make(map[string]*EventSubscription)
	eb.metrics.ActiveSubscriptions = 0
}

// Common event filters

// FilterByType creates a filter that matches events of specific types
func FilterByType(eventTypes ...EventType) EventFilter {
	typeMap := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeMap[t] = true
	}
	return func(event Event) bool {
		return typeMap[event.Type()]
	}
}
