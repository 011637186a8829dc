package domain

import (
	"context"
	"time"
)

// MaxChannelNameLength bounds channel names, counted in characters.
const MaxChannelNameLength = 100

// Channel is a named partition of the message log
type Channel struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// ChannelUpdate carries a partial channel update; nil fields are left unchanged.
type ChannelUpdate struct {
	Name        *string
	Description *string
}

// ChannelRepository is the channel persistence collaborator.
// Create reports ErrChannelNameTaken on duplicate names; lookups on unknown
// ids report ErrChannelNotFound.
type ChannelRepository interface {
	Create(ctx context.Context, channel *Channel) error
	GetByID(ctx context.Context, id string) (*Channel, error)
	List(ctx context.Context) ([]*Channel, error)
	Update(ctx context.Context, id string, update ChannelUpdate) (*Channel, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}
