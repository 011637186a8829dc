package service

import (
	"context"
	"log/slog"
	"strings"

	"teamchat/internal/domain"
	"teamchat/internal/observability"
)

// ChannelCache drops cached channel existence answers
type ChannelCache interface {
	Forget(ctx context.Context, channelID string)
}

// ChannelService manages the channel catalogue
type ChannelService struct {
	repo  domain.ChannelRepository
	cache ChannelCache
}

// NewChannelService creates a channel service. cache may be nil.
func NewChannelService(repo domain.ChannelRepository, cache ChannelCache) *ChannelService {
	return &ChannelService{repo: repo, cache: cache}
}

// ListChannels returns every channel, oldest first, with message counts
func (s *ChannelService) ListChannels(ctx context.Context) ([]*domain.Channel, error) {
	return s.repo.List(ctx)
}

// GetChannel returns a single channel
func (s *ChannelService) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	if err := validateStruct(channelRef{ChannelID: id}); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// CreateChannel registers a channel under a unique, trimmed name.
func (s *ChannelService) CreateChannel(ctx context.Context, name string, description *string) (*domain.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyChannelName
	}
	description = trimOptional(description)
	if err := validateStruct(channelInput{Name: name, Description: description}); err != nil {
		return nil, err
	}

	channel := &domain.Channel{Name: name, Description: description}
	if err := s.repo.Create(ctx, channel); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Info("channel created",
		slog.String("channel_id", channel.ID),
		slog.String("name", channel.Name))
	return channel, nil
}

// UpdateChannel applies a partial update.
func (s *ChannelService) UpdateChannel(ctx context.Context, id string, name, description *string) (*domain.Channel, error) {
	if err := validateStruct(channelRef{ChannelID: id}); err != nil {
		return nil, err
	}
	name = trimOptional(name)
	if name != nil && *name == "" {
		return nil, domain.ErrEmptyChannelName
	}
	description = trimOptional(description)
	if err := validateStruct(channelPatch{Name: name, Description: description}); err != nil {
		return nil, err
	}

	return s.repo.Update(ctx, id, domain.ChannelUpdate{Name: name, Description: description})
}

// DeleteChannel removes a channel with its history.
func (s *ChannelService) DeleteChannel(ctx context.Context, id string) error {
	if err := validateStruct(channelRef{ChannelID: id}); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Forget(ctx, id)
	}

	observability.FromContext(ctx).Info("channel deleted", slog.String("channel_id", id))
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	return &trimmed
}
