package domain

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength bounds message content, counted in characters.
const MaxContentLength = 4000

// Message represents one chat entry in a channel's log
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessagePage is one page of a channel's history, oldest first
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalCount int        `json:"total_count"`
	PageCount  int        `json:"page_count"`
}

// NewMessagePage computes the page count as ceil(total / pageSize).
func NewMessagePage(messages []*Message, page, pageSize, total int) *MessagePage {
	if messages == nil {
		messages = make([]*Message, 0)
	}
	pageCount := 0
	if pageSize > 0 {
		pageCount = (total + pageSize - 1) / pageSize
	}
	return &MessagePage{
		Messages:   messages,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		PageCount:  pageCount,
	}
}

// MessageStore is the durable, ordered per-channel message log.
//
// Append fails with ErrChannelNotFound for unknown channels and ErrEmptyContent
// for blank content. Edit and Delete only match messages owned by authorID and
// report ErrMessageNotFound otherwise. List returns messages oldest first, with
// page 1 holding the oldest messages, plus the channel's total message count.
type MessageStore interface {
	Append(ctx context.Context, channelID, authorID, content string) (*Message, error)
	Edit(ctx context.Context, messageID, authorID, content string) (*Message, error)
	Delete(ctx context.Context, messageID, authorID string) (*Message, error)
	List(ctx context.Context, channelID string, page, pageSize int) ([]*Message, int, error)
}

// NormalizeContent trims surrounding whitespace and rejects empty or oversized content.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// PageOffset returns the number of messages preceding the given page.
func PageOffset(page, pageSize int) (int, error) {
	if page < 1 || pageSize < 1 {
		return 0, ErrInvalidPage
	}
	return (page - 1) * pageSize, nil
}
