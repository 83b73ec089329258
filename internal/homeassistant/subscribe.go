package homeassistant

import (
	"context"
	"fmt"
)

// EventHandler receives events for a subscription. It runs on the read
// goroutine and must return quickly.
type EventHandler func(Event)

// Subscription is an active subscribe_events registration.
type Subscription struct {
	client    *Client
	eventType string
	handler   EventHandler
	id        int64 // Guarded by client.subMu; changes on reconnect.
}

// EventType returns the subscribed event type.
func (s *Subscription) EventType() string {
	return s.eventType
}

// SubscribeEvents subscribes to bus events of the given type.
//
// The subscription survives reconnection: the client re-subscribes under a
// new id after re-authenticating.
//
// Parameters:
//   - ctx: Bounds the subscribe request
//   - eventType: Event type, e.g. EventStateChanged
//   - handler: Callback for each event (must not block)
//
// Returns:
//   - *Subscription: Handle used to unsubscribe
//   - error: ErrNotConnected, ErrTimeout or a RequestError
func (c *Client) SubscribeEvents(ctx context.Context, eventType string, handler EventHandler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil event handler", ErrRequestFailed)
	}

	sub := &Subscription{
		client:    c,
		eventType: eventType,
		handler:   handler,
	}

	// Register before sending so events that follow the result are not lost.
	id := c.nextID.Add(1)
	c.subMu.Lock()
	sub.id = id
	c.subs[id] = sub
	c.subMu.Unlock()

	if _, err := c.request(ctx, outbound{ID: id, Type: typeSubscribeEvents, EventType: eventType}); err != nil {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
		return nil, fmt.Errorf("subscribing to %s: %w", eventType, err)
	}

	c.logger.Debug("subscribed to home assistant events", "event_type", eventType, "subscription", id)
	return sub, nil
}

// Unsubscribe stops event delivery. When the connection is down the
// subscription is only dropped locally; Home Assistant forgets it on
// disconnect.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	c := s.client

	c.subMu.Lock()
	id := s.id
	_, active := c.subs[id]
	delete(c.subs, id)
	c.subMu.Unlock()

	if !active || !c.IsConnected() {
		return nil
	}

	if _, err := c.request(ctx, outbound{Type: typeUnsubscribeEvents, Subscription: id}); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", s.eventType, err)
	}
	return nil
}

// deliver dispatches an event message to its subscription handler.
func (c *Client) deliver(msg inbound) {
	if msg.Event == nil {
		return
	}

	c.subMu.Lock()
	sub, ok := c.subs[msg.ID]
	c.subMu.Unlock()
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in home assistant event handler",
				"event_type", sub.eventType,
				"panic", r,
			)
		}
	}()
	sub.handler(*msg.Event)
}

// restoreSubscriptions re-subscribes every registration after a reconnect.
// Each subscription is re-keyed under its new id before the request is sent.
func (c *Client) restoreSubscriptions(ctx context.Context) {
	c.subMu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subs = make(map[int64]*Subscription, len(subs))
	for _, sub := range subs {
		sub.id = c.nextID.Add(1)
		c.subs[sub.id] = sub
	}
	c.subMu.Unlock()

	restored := 0
	for _, sub := range subs {
		c.subMu.Lock()
		id := sub.id
		c.subMu.Unlock()

		if _, err := c.request(ctx, outbound{ID: id, Type: typeSubscribeEvents, EventType: sub.eventType}); err != nil {
			c.logger.Error("failed to restore home assistant subscription",
				"event_type", sub.eventType,
				"error", err,
			)
			continue
		}
		restored++
	}

	if len(subs) > 0 {
		c.logger.Info("home assistant subscriptions restored", "restored", restored, "total", len(subs))
	}
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}
