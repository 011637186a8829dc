// Package memory keeps channels and their message logs in process memory.
// It backs development runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/domain"
	"teamchat/internal/observability"
)

const backendName = "memory"

// Store implements domain.MessageStore and domain.ChannelRepository.
// Each channel log has its own lock so appends to different channels never
// contend; the store lock only guards the channel table itself.
type Store struct {
	mu       sync.RWMutex
	channels map[string]*channelLog
	names    map[string]string

	indexMu sync.RWMutex
	index   map[string]string

	now func() time.Time
}

type channelLog struct {
	mu       sync.RWMutex
	channel  domain.Channel
	messages []*domain.Message
	byID     map[string]*domain.Message
	last     time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty in-memory store
func NewStore(opts ...Option) *Store {
	s := &Store{
		channels: make(map[string]*channelLog),
		names:    make(map[string]string),
		index:    make(map[string]string),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a message to the tail of the channel log.
func (s *Store) Append(ctx context.Context, channelID, authorID, content string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "append", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.channels[channelID]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}

	log.mu.Lock()
	now := s.now().UTC()
	if now.Before(log.last) {
		now = log.last
	}
	log.last = now

	msg := &domain.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	log.messages = append(log.messages, msg)
	log.byID[msg.ID] = msg
	log.mu.Unlock()

	s.indexMu.Lock()
	s.index[msg.ID] = channelID
	s.indexMu.Unlock()

	return cloneMessage(msg), nil
}

// Edit replaces the content of a message owned by authorID.
func (s *Store) Edit(ctx context.Context, messageID, authorID, content string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "edit", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logFor(messageID)
	if !ok {
		return nil, domain.ErrMessageNotFound
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	msg, ok := log.byID[messageID]
	if !ok || msg.AuthorID != authorID {
		return nil, domain.ErrMessageNotFound
	}

	updated := s.now().UTC()
	if updated.Before(msg.CreatedAt) {
		updated = msg.CreatedAt
	}
	msg.Content = content
	msg.UpdatedAt = updated

	return cloneMessage(msg), nil
}

// Delete removes a message owned by authorID and returns it.
func (s *Store) Delete(ctx context.Context, messageID, authorID string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "delete", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logFor(messageID)
	if !ok {
		return nil, domain.ErrMessageNotFound
	}

	log.mu.Lock()
	msg, ok := log.byID[messageID]
	if !ok || msg.AuthorID != authorID {
		log.mu.Unlock()
		return nil, domain.ErrMessageNotFound
	}
	delete(log.byID, messageID)
	for i, m := range log.messages {
		if m.ID == messageID {
			log.messages = append(log.messages[:i], log.messages[i+1:]...)
			break
		}
	}
	log.mu.Unlock()

	s.indexMu.Lock()
	delete(s.index, messageID)
	s.indexMu.Unlock()

	return msg, nil
}

// List returns one page of the channel log, oldest first, and the channel total.
func (s *Store) List(ctx context.Context, channelID string, page, pageSize int) ([]*domain.Message, int, error) {
	defer observability.ObserveStoreOperation(backendName, "list", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	offset, err := domain.PageOffset(page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.channels[channelID]
	if !ok {
		return nil, 0, domain.ErrChannelNotFound
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	total := len(log.messages)
	if offset >= total {
		return []*domain.Message{}, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}

	out := make([]*domain.Message, 0, end-offset)
	for _, m := range log.messages[offset:end] {
		out = append(out, cloneMessage(m))
	}
	return out, total, nil
}

// Create registers a new channel, assigning its id and creation time.
func (s *Store) Create(ctx context.Context, channel *domain.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := nameKey(channel.Name)
	if _, taken := s.names[key]; taken {
		return domain.ErrChannelNameTaken
	}

	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	if _, exists := s.channels[channel.ID]; exists {
		return domain.ErrChannelNameTaken
	}
	channel.CreatedAt = s.now().UTC()
	channel.MessageCount = 0

	s.channels[channel.ID] = &channelLog{
		channel: *channel,
		byID:    make(map[string]*domain.Message),
	}
	s.names[key] = channel.ID
	return nil
}

// GetByID returns a channel with its current message count.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return log.snapshot(), nil
}

// ListChannels returns every channel ordered by creation time.
func (s *Store) ListChannels(ctx context.Context) ([]*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*domain.Channel, 0, len(s.channels))
	for _, log := range s.channels {
		out = append(out, log.snapshot())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies a partial update to a channel.
func (s *Store) Update(ctx context.Context, id string, update domain.ChannelUpdate) (*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	if update.Name != nil {
		oldKey := nameKey(log.channel.Name)
		newKey := nameKey(*update.Name)
		if newKey != oldKey {
			if _, taken := s.names[newKey]; taken {
				return nil, domain.ErrChannelNameTaken
			}
			delete(s.names, oldKey)
			s.names[newKey] = id
		}
		log.channel.Name = *update.Name
	}
	if update.Description != nil {
		desc := *update.Description
		log.channel.Description = &desc
	}

	ch := log.channel
	ch.MessageCount = len(log.messages)
	return &ch, nil
}

// DeleteChannel removes a channel and its whole message log.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	log, ok := s.channels[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrChannelNotFound
	}
	delete(s.channels, id)
	delete(s.names, nameKey(log.channel.Name))
	s.mu.Unlock()

	log.mu.RLock()
	ids := make([]string, 0, len(log.messages))
	for _, m := range log.messages {
		ids = append(ids, m.ID)
	}
	log.mu.RUnlock()

	s.indexMu.Lock()
	for _, msgID := range ids {
		delete(s.index, msgID)
	}
	s.indexMu.Unlock()
	return nil
}

// Exists reports whether a channel is known.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[id]
	return ok, nil
}

// Channels adapts the store to domain.ChannelRepository, whose List and
// Delete names collide with the message log operations.
func (s *Store) Channels() domain.ChannelRepository {
	return channelRepository{s}
}

type channelRepository struct {
	*Store
}

func (r channelRepository) List(ctx context.Context) ([]*domain.Channel, error) {
	return r.Store.ListChannels(ctx)
}

func (r channelRepository) Delete(ctx context.Context, id string) error {
	return r.Store.DeleteChannel(ctx, id)
}

func (s *Store) logFor(messageID string) (*channelLog, bool) {
	s.indexMu.RLock()
	channelID, ok := s.index[messageID]
	s.indexMu.RUnlock()
	if !ok {
		return nil, false
	}
	log, ok := s.channels[channelID]
	return log, ok
}

func (l *channelLog) snapshot() *domain.Channel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ch := l.channel
	ch.MessageCount = len(l.messages)
	if ch.Description != nil {
		desc := *ch.Description
		ch.Description = &desc
	}
	return &ch
}

func nameKey(name string) string {
	return strings.TrimSpace(name)
}

func cloneMessage(m *domain.Message) *domain.Message {
	c := *m
	return &c
}
