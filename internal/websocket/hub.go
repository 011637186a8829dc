package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/domain"
	"teamchat/internal/observability"
	"teamchat/internal/registry"
)

// ErrConnectionNotFound is returned for operations on an unknown or already
// unregistered connection.
var ErrConnectionNotFound = errors.New("connection not found")

const statsInterval = 30 * time.Second

// Hub owns the set of live connections and fans events out to them.
//
// Registration and membership changes take the hub lock so that a connection
// can never gain a subscription after it has been unregistered. Delivery
// only enqueues onto each client's bounded queue and never blocks on a slow
// reader; a client whose queue is full is disconnected.
type Hub struct {
	registry *registry.Registry

	mu      sync.RWMutex
	clients map[string]*Client

	done chan struct{}
}

// NewHub creates a new Hub
func NewHub(reg *registry.Registry) *Hub {
	return &Hub{
		registry: reg,
		clients:  make(map[string]*Client),
		done:     make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled, logging hub statistics periodically,
// then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()
		case <-ticker.C:
			slog.Debug("hub stats", slog.Int("connections", h.ConnectionCount()))
		}
	}
}

// Done is closed once the hub has shut down
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) shutdown() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Unregister(id)
	}

	close(h.done)
	slog.Info("hub shutdown complete", slog.Int("closed_connections", len(ids)))
}

// Register assigns the client a fresh connection id and starts tracking it.
func (h *Hub) Register(client *Client) string {
	id := uuid.NewString()
	client.id = id

	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()

	observability.WebSocketConnectionsActive.Inc()
	slog.Info("client registered",
		slog.String("connection_id", id),
		slog.String("user_id", client.userID))
	return id
}

// Unregister removes a connection and all of its subscriptions. Calling it
// again for the same id is a no-op.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	client, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	released := h.registry.RemoveConnection(connID)
	observability.ChannelSubscriptionsActive.Sub(float64(len(released)))
	observability.WebSocketConnectionsActive.Dec()
	client.stop()

	slog.Info("client unregistered",
		slog.String("connection_id", connID),
		slog.String("user_id", client.userID),
		slog.Int("released_channels", len(released)))
}

// Join subscribes a registered connection to a channel. Joining a channel
// that is already joined is a no-op.
func (h *Hub) Join(connID, channelID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[connID]; !ok {
		return ErrConnectionNotFound
	}
	if h.registry.Subscribe(connID, channelID) {
		observability.ChannelSubscriptionsActive.Inc()
	}
	return nil
}

// Leave unsubscribes a registered connection from a channel. Leaving a
// channel that was never joined is a no-op.
func (h *Hub) Leave(connID, channelID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[connID]; !ok {
		return ErrConnectionNotFound
	}
	if h.registry.Unsubscribe(connID, channelID) {
		observability.ChannelSubscriptionsActive.Dec()
	}
	return nil
}

// ChannelExists reports whether channelID names a known channel.
func (h *Hub) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	return h.registry.Exists(ctx, channelID)
}

// PublishMessage delivers a new_message event to the channel's subscribers,
// skipping excludeConnID. It returns the number of connections reached.
func (h *Hub) PublishMessage(msg *domain.Message, excludeConnID string) int {
	return h.PublishChannelEvent(msg.ChannelID, domain.Event{
		Type:      domain.EventNewMessage,
		ChannelID: msg.ChannelID,
		Data:      msg,
	}, excludeConnID)
}

// PublishChannelEvent delivers evt to the subscribers of channelID.
func (h *Hub) PublishChannelEvent(channelID string, evt domain.Event, excludeConnID string) int {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("failed to marshal event",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()))
		return 0
	}

	ids := h.registry.SubscribersOf(channelID)

	h.mu.RLock()
	targets := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if id == excludeConnID {
			continue
		}
		if client, ok := h.clients[id]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, evt.Type, data)
}

// PublishGlobal delivers evt to every registered connection except excludeConnID.
func (h *Hub) PublishGlobal(evt domain.Event, excludeConnID string) int {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("failed to marshal event",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()))
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		if id != excludeConnID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, evt.Type, data)
}

// SendTo queues evt for a single connection.
func (h *Hub) SendTo(connID string, evt domain.Event) error {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	h.deliver([]*Client{client}, evt.Type, data)
	return nil
}

func (h *Hub) deliver(targets []*Client, eventType string, data []byte) int {
	delivered := 0
	for _, client := range targets {
		if client.stopped() {
			continue
		}
		if client.enqueue(data) {
			delivered++
			observability.WebSocketEventsSent.WithLabelValues(eventType).Inc()
			continue
		}

		observability.WebSocketEventsDropped.WithLabelValues(eventType).Inc()
		slog.Warn("disconnecting slow connection",
			slog.String("connection_id", client.id),
			slog.String("event_type", eventType))
		h.Unregister(client.id)
	}
	return delivered
}

// ConnectionCount returns the number of registered connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRegistered reports whether connID is currently registered
func (h *Hub) IsRegistered(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[connID]
	return ok
}
