package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"teamchat/internal/domain"
	"teamchat/internal/observability"
	"teamchat/internal/syncutil"
)

// DefaultMaxPageSize caps history pages when no explicit limit is configured.
const DefaultMaxPageSize = 100

// Broadcaster fans events out to live connections
type Broadcaster interface {
	PublishMessage(msg *domain.Message, excludeConnID string) int
	PublishChannelEvent(channelID string, evt domain.Event, excludeConnID string) int
	PublishGlobal(evt domain.Event, excludeConnID string) int
}

// TaskRelay forwards task changes to other server instances
type TaskRelay interface {
	PublishTaskChange(ctx context.Context, change domain.TaskChange) error
}

// ChatService is the single entry point for message operations from both the
// HTTP API and live connections. It persists first and broadcasts second.
type ChatService struct {
	store       domain.MessageStore
	hub         Broadcaster
	relay       TaskRelay
	locks       *syncutil.KeyedMutex
	maxPageSize int
}

// NewChatService creates the gateway. relay may be nil when running a single
// instance.
func NewChatService(store domain.MessageStore, hub Broadcaster, relay TaskRelay, maxPageSize int) *ChatService {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &ChatService{
		store:       store,
		hub:         hub,
		relay:       relay,
		locks:       syncutil.NewKeyedMutex(),
		maxPageSize: maxPageSize,
	}
}

// CreateMessage appends to the channel log and broadcasts the stored record
// to the channel's subscribers except excludeConnID. The channel lock spans
// append and publish so every subscriber sees the log's order.
func (s *ChatService) CreateMessage(ctx context.Context, actorID, channelID, content, excludeConnID string) (*domain.Message, error) {
	if actorID == "" {
		return nil, domain.ErrMissingActor
	}
	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(channelRef{ChannelID: channelID}); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(channelID)
	defer unlock()

	msg, err := s.store.Append(ctx, channelID, actorID, content)
	if err != nil {
		return nil, err
	}

	delivered := s.hub.PublishMessage(msg, excludeConnID)
	observability.FromContext(ctx).Debug("message created",
		slog.String("message_id", msg.ID),
		slog.String("channel_id", channelID),
		slog.Int("delivered", delivered))
	return msg, nil
}

// EditMessage changes a message owned by actorID and notifies the channel.
func (s *ChatService) EditMessage(ctx context.Context, actorID, messageID, content, excludeConnID string) (*domain.Message, error) {
	if actorID == "" {
		return nil, domain.ErrMissingActor
	}
	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(messageRef{ActorID: actorID, MessageID: messageID}); err != nil {
		return nil, err
	}

	msg, err := s.store.Edit(ctx, messageID, actorID, content)
	if err != nil {
		return nil, err
	}

	s.hub.PublishChannelEvent(msg.ChannelID, domain.Event{
		Type:      domain.EventMessageUpdated,
		ChannelID: msg.ChannelID,
		Data:      msg,
	}, excludeConnID)
	return msg, nil
}

// DeleteMessage removes a message owned by actorID and notifies the channel.
func (s *ChatService) DeleteMessage(ctx context.Context, actorID, messageID, excludeConnID string) error {
	if actorID == "" {
		return domain.ErrMissingActor
	}
	if err := validateStruct(messageRef{ActorID: actorID, MessageID: messageID}); err != nil {
		return err
	}

	msg, err := s.store.Delete(ctx, messageID, actorID)
	if err != nil {
		return err
	}

	s.hub.PublishChannelEvent(msg.ChannelID, domain.Event{
		Type:      domain.EventMessageDeleted,
		ChannelID: msg.ChannelID,
		Data:      map[string]string{"id": msg.ID, "channel_id": msg.ChannelID},
	}, excludeConnID)
	return nil
}

// ListMessages returns one page of channel history, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, channelID string, page, pageSize int) (*domain.MessagePage, error) {
	if err := validateStruct(pageRequest{ChannelID: channelID, Page: page, PageSize: pageSize}); err != nil {
		return nil, err
	}
	if pageSize > s.maxPageSize {
		return nil, fmt.Errorf("%w: page_size must not exceed %d", domain.ErrInvalidArgument, s.maxPageSize)
	}

	messages, total, err := s.store.List(ctx, channelID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return domain.NewMessagePage(messages, page, pageSize, total), nil
}

// PublishTaskChange forwards a task change to every live connection except
// excludeConnID and relays it to other instances when a relay is configured.
// Relay failures are logged, never returned.
func (s *ChatService) PublishTaskChange(ctx context.Context, actorID string, payload json.RawMessage, excludeConnID string) error {
	if len(payload) == 0 || !json.Valid(payload) {
		return fmt.Errorf("%w: task payload must be valid JSON", domain.ErrInvalidArgument)
	}

	change := domain.TaskChange{ActorID: actorID, Payload: payload}
	s.hub.PublishGlobal(domain.Event{Type: domain.EventTaskChanged, Data: change}, excludeConnID)

	if s.relay != nil {
		if err := s.relay.PublishTaskChange(ctx, change); err != nil {
			observability.TaskEventsRelayed.WithLabelValues("outbound", "error").Inc()
			observability.FromContext(ctx).Error("failed to relay task change",
				slog.String("error", err.Error()))
			return nil
		}
		observability.TaskEventsRelayed.WithLabelValues("outbound", "ok").Inc()
	}
	return nil
}
