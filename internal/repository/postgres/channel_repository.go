package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"teamchat/internal/domain"
	"teamchat/internal/observability"
)

const channelNameConstraint = "channels_name_key"

const (
	createChannelQuery = `
		INSERT INTO channels (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	getChannelQuery = `
		SELECT c.id, c.name, c.description, c.created_at,
			(SELECT COUNT(*) FROM messages m WHERE m.channel_id = c.id)
		FROM channels c
		WHERE c.id = $1
	`
	listChannelsQuery = `
		SELECT c.id, c.name, c.description, c.created_at,
			(SELECT COUNT(*) FROM messages m WHERE m.channel_id = c.id)
		FROM channels c
		ORDER BY c.created_at ASC, c.name ASC
	`
	updateChannelQuery = `
		UPDATE channels
		SET name = COALESCE($2, name), description = COALESCE($3, description)
		WHERE id = $1
		RETURNING id, name, description, created_at,
			(SELECT COUNT(*) FROM messages m WHERE m.channel_id = channels.id)
	`
	deleteChannelQuery = `
		DELETE FROM channels WHERE id = $1
	`
	channelExistsQuery = `
		SELECT EXISTS(SELECT 1 FROM channels WHERE id = $1)
	`
)

// ChannelRepository implements domain.ChannelRepository for PostgreSQL
type ChannelRepository struct {
	db *sql.DB
}

// NewChannelRepository creates a new PostgreSQL channel repository
func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Create inserts a new channel
func (r *ChannelRepository) Create(ctx context.Context, channel *domain.Channel) error {
	defer observability.ObserveQuery("insert", "channels", time.Now())

	err := r.db.QueryRowContext(ctx, createChannelQuery,
		channel.Name,
		nullString(channel.Description),
	).Scan(&channel.ID, &channel.CreatedAt)
	if IsUniqueViolation(err, channelNameConstraint) {
		return domain.ErrChannelNameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	channel.CreatedAt = channel.CreatedAt.UTC()
	channel.MessageCount = 0
	return nil
}

// GetByID retrieves a channel with its message count
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	defer observability.ObserveQuery("select", "channels", time.Now())

	channel, err := scanChannel(r.db.QueryRowContext(ctx, getChannelQuery, id))
	if errors.Is(err, sql.ErrNoRows) || IsInvalidInput(err) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return channel, nil
}

// List retrieves all channels, oldest first
func (r *ChannelRepository) List(ctx context.Context) ([]*domain.Channel, error) {
	defer observability.ObserveQuery("select", "channels", time.Now())

	rows, err := r.db.QueryContext(ctx, listChannelsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*domain.Channel, 0)
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, channel)
	}

	return channels, rows.Err()
}

// Update applies a partial update; nil fields keep their stored value.
func (r *ChannelRepository) Update(ctx context.Context, id string, update domain.ChannelUpdate) (*domain.Channel, error) {
	defer observability.ObserveQuery("update", "channels", time.Now())

	channel, err := scanChannel(r.db.QueryRowContext(ctx, updateChannelQuery,
		id,
		nullString(update.Name),
		nullString(update.Description),
	))
	if errors.Is(err, sql.ErrNoRows) || IsInvalidInput(err) {
		return nil, domain.ErrChannelNotFound
	}
	if IsUniqueViolation(err, channelNameConstraint) {
		return nil, domain.ErrChannelNameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update channel: %w", err)
	}
	return channel, nil
}

// Delete removes a channel; its messages go with it via ON DELETE CASCADE.
func (r *ChannelRepository) Delete(ctx context.Context, id string) error {
	defer observability.ObserveQuery("delete", "channels", time.Now())

	result, err := r.db.ExecContext(ctx, deleteChannelQuery, id)
	if IsInvalidInput(err) {
		return domain.ErrChannelNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if affected == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

// Exists reports whether a channel with the given id exists
func (r *ChannelRepository) Exists(ctx context.Context, id string) (bool, error) {
	defer observability.ObserveQuery("select", "channels", time.Now())

	var exists bool
	err := r.db.QueryRowContext(ctx, channelExistsQuery, id).Scan(&exists)
	if IsInvalidInput(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check channel: %w", err)
	}
	return exists, nil
}

func scanChannel(row rowScanner) (*domain.Channel, error) {
	channel := &domain.Channel{}
	var description sql.NullString
	if err := row.Scan(
		&channel.ID,
		&channel.Name,
		&description,
		&channel.CreatedAt,
		&channel.MessageCount,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		channel.Description = &description.String
	}
	channel.CreatedAt = channel.CreatedAt.UTC()
	return channel, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
