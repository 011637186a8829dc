package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"teamchat/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// ChannelOptions allows customizing channel fixture creation
type ChannelOptions struct {
	ID           string
	Name         string
	Description  *string
	CreatedAt    time.Time
	MessageCount int
}

// NewTestChannel creates a test channel with sensible defaults
// Pass options to override specific fields
func NewTestChannel(opts ...func(*ChannelOptions)) *domain.Channel {
	o := &ChannelOptions{
		ID: nextID("channel"),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Name == "" {
		o.Name = "channel-" + o.ID
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.Channel{
		ID:           o.ID,
		Name:         o.Name,
		Description:  o.Description,
		CreatedAt:    o.CreatedAt,
		MessageCount: o.MessageCount,
	}
}

// WithChannelID sets the channel ID
func WithChannelID(id string) func(*ChannelOptions) {
	return func(o *ChannelOptions) {
		o.ID = id
	}
}

// WithChannelName sets the channel name
func WithChannelName(name string) func(*ChannelOptions) {
	return func(o *ChannelOptions) {
		o.Name = name
	}
}

// WithDescription sets the channel description
func WithDescription(description string) func(*ChannelOptions) {
	return func(o *ChannelOptions) {
		o.Description = &description
	}
}

// WithMessageCount sets the reported message count
func WithMessageCount(n int) func(*ChannelOptions) {
	return func(o *ChannelOptions) {
		o.MessageCount = n
	}
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// NewTestMessage creates a test message with sensible defaults
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ID:        nextID("msg"),
		ChannelID: nextID("channel"),
		AuthorID:  nextID("user"),
		Content:   "Test message content",
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.Message{
		ID:        o.ID,
		ChannelID: o.ChannelID,
		AuthorID:  o.AuthorID,
		Content:   o.Content,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.CreatedAt,
	}
}

// WithMessageID sets the message ID
func WithMessageID(id string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.ID = id
	}
}

// WithMessageChannel sets the channel the message belongs to
func WithMessageChannel(channelID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.ChannelID = channelID
	}
}

// WithAuthor sets the message author
func WithAuthor(authorID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.AuthorID = authorID
	}
}

// WithContent sets the message content
func WithContent(content string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Content = content
	}
}

// WithMessageCreatedAt sets the message creation time
func WithMessageCreatedAt(t time.Time) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.CreatedAt = t
	}
}
