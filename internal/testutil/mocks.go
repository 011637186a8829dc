// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the teamchat application.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"teamchat/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockFailure        = errors.New("mock: failure")
)

// MockMessageStore implements domain.MessageStore for testing
type MockMessageStore struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	AppendFunc func(ctx context.Context, channelID, authorID, content string) (*domain.Message, error)
	EditFunc   func(ctx context.Context, messageID, authorID, content string) (*domain.Message, error)
	DeleteFunc func(ctx context.Context, messageID, authorID string) (*domain.Message, error)
	ListFunc   func(ctx context.Context, channelID string, page, pageSize int) ([]*domain.Message, int, error)

	// In-memory storage for simple tests; a channel must be present in
	// Channels before messages can be appended to it.
	Channels map[string]bool
	Messages []*domain.Message
}

// NewMockMessageStore creates a MockMessageStore that accepts the given channels
func NewMockMessageStore(channelIDs ...string) *MockMessageStore {
	m := &MockMessageStore{Channels: make(map[string]bool)}
	for _, id := range channelIDs {
		m.Channels[id] = true
	}
	return m
}

func (m *MockMessageStore) Append(ctx context.Context, channelID, authorID, content string) (*domain.Message, error) {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, channelID, authorID, content)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Channels[channelID] {
		return nil, domain.ErrChannelNotFound
	}

	msg := &domain.Message{
		ID:        nextID("msg"),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	msg.UpdatedAt = msg.CreatedAt
	m.Messages = append(m.Messages, msg)
	copied := *msg
	return &copied, nil
}

func (m *MockMessageStore) Edit(ctx context.Context, messageID, authorID, content string) (*domain.Message, error) {
	if m.EditFunc != nil {
		return m.EditFunc(ctx, messageID, authorID, content)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.Messages {
		if msg.ID == messageID && msg.AuthorID == authorID {
			msg.Content = content
			msg.UpdatedAt = time.Now()
			copied := *msg
			return &copied, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (m *MockMessageStore) Delete(ctx context.Context, messageID, authorID string) (*domain.Message, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, messageID, authorID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, msg := range m.Messages {
		if msg.ID == messageID && msg.AuthorID == authorID {
			m.Messages = append(m.Messages[:i], m.Messages[i+1:]...)
			return msg, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (m *MockMessageStore) List(ctx context.Context, channelID string, page, pageSize int) ([]*domain.Message, int, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, channelID, page, pageSize)
	}
	offset, err := domain.PageOffset(page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.Channels[channelID] {
		return nil, 0, domain.ErrChannelNotFound
	}

	var inChannel []*domain.Message
	for _, msg := range m.Messages {
		if msg.ChannelID == channelID {
			inChannel = append(inChannel, msg)
		}
	}

	result := make([]*domain.Message, 0, pageSize)
	for i := offset; i < len(inChannel) && len(result) < pageSize; i++ {
		copied := *inChannel[i]
		result = append(result, &copied)
	}
	return result, len(inChannel), nil
}

// MockChannelRepository implements domain.ChannelRepository for testing
type MockChannelRepository struct {
	mu sync.RWMutex

	CreateFunc  func(ctx context.Context, channel *domain.Channel) error
	GetByIDFunc func(ctx context.Context, id string) (*domain.Channel, error)
	ListFunc    func(ctx context.Context) ([]*domain.Channel, error)
	UpdateFunc  func(ctx context.Context, id string, update domain.ChannelUpdate) (*domain.Channel, error)
	DeleteFunc  func(ctx context.Context, id string) error
	ExistsFunc  func(ctx context.Context, id string) (bool, error)

	Channels map[string]*domain.Channel
}

// NewMockChannelRepository creates a MockChannelRepository seeded with channels
func NewMockChannelRepository(channels ...*domain.Channel) *MockChannelRepository {
	m := &MockChannelRepository{Channels: make(map[string]*domain.Channel)}
	for _, ch := range channels {
		m.Channels[ch.ID] = ch
	}
	return m
}

func (m *MockChannelRepository) Create(ctx context.Context, channel *domain.Channel) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, channel)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.Channels {
		if ch.Name == channel.Name {
			return domain.ErrChannelNameTaken
		}
	}

	if channel.ID == "" {
		channel.ID = nextID("channel")
	}
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now()
	}
	m.Channels[channel.ID] = channel
	return nil
}

func (m *MockChannelRepository) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ch, ok := m.Channels[id]; ok {
		return ch, nil
	}
	return nil, domain.ErrChannelNotFound
}

func (m *MockChannelRepository) List(ctx context.Context) ([]*domain.Channel, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Channel, 0, len(m.Channels))
	for _, ch := range m.Channels {
		result = append(result, ch)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockChannelRepository) Update(ctx context.Context, id string, update domain.ChannelUpdate) (*domain.Channel, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, update)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.Channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	if update.Name != nil {
		for otherID, other := range m.Channels {
			if otherID != id && other.Name == *update.Name {
				return nil, domain.ErrChannelNameTaken
			}
		}
		ch.Name = *update.Name
	}
	if update.Description != nil {
		ch.Description = update.Description
	}
	return ch, nil
}

func (m *MockChannelRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Channels[id]; !ok {
		return domain.ErrChannelNotFound
	}
	delete(m.Channels, id)
	return nil
}

func (m *MockChannelRepository) Exists(ctx context.Context, id string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.Channels[id]
	return ok, nil
}

// PublishedEvent is one call recorded by RecordingBroadcaster
type PublishedEvent struct {
	Scope     string // "channel" or "global"
	ChannelID string
	Event     domain.Event
	Exclude   string
}

// RecordingBroadcaster records every publish call instead of delivering it
type RecordingBroadcaster struct {
	mu     sync.Mutex
	events []PublishedEvent

	// Delivered is returned from every publish call
	Delivered int
}

func (b *RecordingBroadcaster) PublishMessage(msg *domain.Message, excludeConnID string) int {
	return b.PublishChannelEvent(msg.ChannelID, domain.Event{
		Type:      domain.EventNewMessage,
		ChannelID: msg.ChannelID,
		Data:      msg,
	}, excludeConnID)
}

func (b *RecordingBroadcaster) PublishChannelEvent(channelID string, evt domain.Event, excludeConnID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, PublishedEvent{Scope: "channel", ChannelID: channelID, Event: evt, Exclude: excludeConnID})
	return b.Delivered
}

func (b *RecordingBroadcaster) PublishGlobal(evt domain.Event, excludeConnID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, PublishedEvent{Scope: "global", Event: evt, Exclude: excludeConnID})
	return b.Delivered
}

// Events returns a snapshot of the recorded calls
func (b *RecordingBroadcaster) Events() []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PublishedEvent(nil), b.events...)
}

// MockTaskRelay records relayed task changes
type MockTaskRelay struct {
	mu      sync.Mutex
	changes []domain.TaskChange

	PublishFunc func(ctx context.Context, change domain.TaskChange) error
}

func (r *MockTaskRelay) PublishTaskChange(ctx context.Context, change domain.TaskChange) error {
	if r.PublishFunc != nil {
		return r.PublishFunc(ctx, change)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return nil
}

// Changes returns a snapshot of the relayed changes
func (r *MockTaskRelay) Changes() []domain.TaskChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TaskChange(nil), r.changes...)
}
