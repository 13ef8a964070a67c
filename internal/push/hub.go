// Package push delivers live message events. Hub fans events out in process;
// Socket receives them from a dmail server over a websocket.
package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/tOgg1/dmail/internal/dmail"
)

// Event is one push notification: a named event carrying a message.
type Event struct {
	Name    string
	Message dmail.Message
}

// Handler is invoked for every event matching a subscription.
type Handler func(event Event)

// Filter defines criteria for matching events.
type Filter struct {
	// Names filters by event name (nil = all events).
	Names []string

	// Recipient limits delivery to messages addressed to this user (empty = all).
	Recipient string
}

// Matches returns true if the event matches the filter criteria.
func (f *Filter) Matches(event Event) bool {
	if len(f.Names) > 0 {
		matched := false
		for _, name := range f.Names {
			if event.Name == name {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.Recipient != "" && event.Message.ReceiverID != f.Recipient {
		return false
	}
	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Hub is an in-process pub/sub broker for push events.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	// Optional: observe every published event.
	observer Handler
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithObserver registers a handler that sees every published event before
// subscribers do.
func WithObserver(h Handler) HubOption {
	return func(hub *Hub) {
		hub.observer = h
	}
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subscriptions: make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish sends event to all matching subscribers and returns how many
// received it. Handlers run outside the lock.
func (h *Hub) Publish(ctx context.Context, event Event) int {
	if ctx.Err() != nil {
		return 0
	}
	if h.observer != nil {
		h.observer(event)
	}

	h.mu.RLock()
	var handlers []Handler
	for _, sub := range h.subscriptions {
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	return len(handlers)
}

// Subscribe registers a handler under id.
func (h *Hub) Subscribe(id string, filter Filter, handler Handler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}
	h.subscriptions[id] = &subscription{id: id, filter: filter, handler: handler}
	return nil
}

// Unsubscribe removes a subscription by ID.
func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(h.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Close removes all subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscriptions = make(map[string]*subscription)
}

// Channel returns a dmail.PushChannel for selfID backed by the hub. Only
// events addressed to selfID are delivered.
func (h *Hub) Channel(selfID string) *LocalChannel {
	return &LocalChannel{hub: h, selfID: selfID}
}

// LocalChannel adapts a Hub subscription to dmail.PushChannel.
type LocalChannel struct {
	hub    *Hub
	selfID string
}

var _ dmail.PushChannel = (*LocalChannel)(nil)

func (c *LocalChannel) subscriptionID(event string) string {
	return fmt.Sprintf("local:%s:%s", c.selfID, event)
}

// On replaces any handler registered for event.
func (c *LocalChannel) On(event string, handler func(dmail.Message)) {
	id := c.subscriptionID(event)
	_ = c.hub.Unsubscribe(id)
	_ = c.hub.Subscribe(id, Filter{Names: []string{event}, Recipient: c.selfID}, func(e Event) {
		handler(e.Message)
	})
}

// Off removes the handler for event. Unknown events are ignored.
func (c *LocalChannel) Off(event string) {
	_ = c.hub.Unsubscribe(c.subscriptionID(event))
}

// SelfID returns the user this channel listens for.
func (c *LocalChannel) SelfID() string {
	return c.selfID
}

// Errors for hub operations.
var (
	ErrInvalidSubscriptionID = &HubError{Message: "subscription ID is required"}
	ErrNilHandler            = &HubError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &HubError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &HubError{Message: "subscription not found"}
)

// HubError represents an error from hub operations.
type HubError struct {
	Message string
}

func (e *HubError) Error() string {
	return e.Message
}
