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

const backendName = "postgres"

const (
	lockChannelQuery = `
		SELECT id FROM channels WHERE id = $1 FOR UPDATE
	`
	// created_at never precedes the channel's newest message, so the log
	// order (created_at, seq) matches the order appends committed in.
	appendMessageQuery = `
		INSERT INTO messages (channel_id, author_id, content, created_at, updated_at)
		SELECT $1, $2, $3, ts, ts FROM (
			SELECT GREATEST(clock_timestamp(), COALESCE(MAX(created_at), clock_timestamp())) AS ts
			FROM messages WHERE channel_id = $1
		) AS next
		RETURNING id, channel_id, author_id, content, created_at, updated_at
	`
	editMessageQuery = `
		UPDATE messages
		SET content = $3, updated_at = GREATEST(clock_timestamp(), created_at)
		WHERE id = $1 AND author_id = $2
		RETURNING id, channel_id, author_id, content, created_at, updated_at
	`
	deleteMessageQuery = `
		DELETE FROM messages
		WHERE id = $1 AND author_id = $2
		RETURNING id, channel_id, author_id, content, created_at, updated_at
	`
	countMessagesQuery = `
		SELECT (SELECT COUNT(*) FROM messages m WHERE m.channel_id = c.id)
		FROM channels c
		WHERE c.id = $1
	`
	listMessagesQuery = `
		SELECT id, channel_id, author_id, content, created_at, updated_at
		FROM messages
		WHERE channel_id = $1
		ORDER BY created_at ASC, seq ASC
		LIMIT $2 OFFSET $3
	`
)

// MessageRepository implements domain.MessageStore for PostgreSQL
type MessageRepository struct {
	db *sql.DB
	tx *TxManager
}

// NewMessageRepository creates a new PostgreSQL message store
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db, tx: NewTxManager(db)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Append inserts a message while holding the channel row lock.
func (r *MessageRepository) Append(ctx context.Context, channelID, authorID, content string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "append", time.Now())

	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{}
	err = r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx, lockChannelQuery, channelID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) || IsInvalidInput(err) {
			return domain.ErrChannelNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock channel: %w", err)
		}

		if err := scanMessage(tx.QueryRowContext(ctx, appendMessageQuery, channelID, authorID, content), msg); err != nil {
			if IsForeignKeyViolation(err, "") {
				return domain.ErrChannelNotFound
			}
			return fmt.Errorf("failed to append message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Edit replaces the content of a message owned by authorID
func (r *MessageRepository) Edit(ctx context.Context, messageID, authorID, content string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "edit", time.Now())

	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{}
	err = scanMessage(r.db.QueryRowContext(ctx, editMessageQuery, messageID, authorID, content), msg)
	if errors.Is(err, sql.ErrNoRows) || IsInvalidInput(err) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}
	return msg, nil
}

// Delete removes a message owned by authorID and returns it
func (r *MessageRepository) Delete(ctx context.Context, messageID, authorID string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "delete", time.Now())

	msg := &domain.Message{}
	err := scanMessage(r.db.QueryRowContext(ctx, deleteMessageQuery, messageID, authorID), msg)
	if errors.Is(err, sql.ErrNoRows) || IsInvalidInput(err) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}
	return msg, nil
}

// List returns one page of the channel log (oldest first) and the channel total.
// Count and page are read from the same snapshot.
func (r *MessageRepository) List(ctx context.Context, channelID string, page, pageSize int) ([]*domain.Message, int, error) {
	defer observability.ObserveStoreOperation(backendName, "list", time.Now())

	offset, err := domain.PageOffset(page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	messages := make([]*domain.Message, 0, pageSize)
	var total int
	err = r.tx.WithTxOptions(ctx, snapshotRead, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, countMessagesQuery, channelID).Scan(&total)
		if errors.Is(err, sql.ErrNoRows) || IsInvalidInput(err) {
			return domain.ErrChannelNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		if offset >= total {
			return nil
		}

		rows, err := tx.QueryContext(ctx, listMessagesQuery, channelID, pageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to query messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			msg := &domain.Message{}
			if err := scanMessage(rows, msg); err != nil {
				return fmt.Errorf("failed to scan message: %w", err)
			}
			messages = append(messages, msg)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func scanMessage(row rowScanner, msg *domain.Message) error {
	if err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.AuthorID,
		&msg.Content,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.UpdatedAt = msg.UpdatedAt.UTC()
	return nil
}
