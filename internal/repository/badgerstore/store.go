// Package badgerstore persists channels and their message logs in an embedded
// BadgerDB instance.
//
// Key layout:
//
//	ch:{channel_id}              channel record with its append cursor
//	chname:{name}                channel id, enforces unique names
//	msg:{channel_id}:{seq:020d}  message, keys sort in append order
//	mid:{message_id}             key of the message record
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"teamchat/internal/domain"
	"teamchat/internal/observability"
	"teamchat/internal/syncutil"
)

const backendName = "badger"

// Store implements domain.MessageStore and domain.ChannelRepository on Badger.
type Store struct {
	db    *badger.DB
	locks *syncutil.KeyedMutex
	now   func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type channelRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeq     uint64    `json:"last_seq"`
	LastAt      time.Time `json:"last_at"`
	Count       int       `json:"count"`
}

// Open opens (or creates) a Badger database at path and wraps it in a Store.
func Open(path string, log *slog.Logger, opts ...Option) (*Store, error) {
	dbOpts := badger.DefaultOptions(path).WithLogger(badgerLogger{log: log.With("component", "badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return New(db, opts...), nil
}

// New wraps an already open Badger database
func New(db *badger.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		locks: syncutil.NewKeyedMutex(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Append writes a message at the next sequence number of its channel.
func (s *Store) Append(ctx context.Context, channelID, authorID, content string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "append", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(channelID)
	defer unlock()

	var msg *domain.Message
	err = s.db.Update(func(txn *badger.Txn) error {
		rec, err := getChannel(txn, channelID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if now.Before(rec.LastAt) {
			now = rec.LastAt
		}
		rec.LastSeq++
		rec.LastAt = now
		rec.Count++

		msg = &domain.Message{
			ID:        uuid.NewString(),
			ChannelID: channelID,
			AuthorID:  authorID,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		}
		key := messageKey(channelID, rec.LastSeq)
		if err := setJSON(txn, key, msg); err != nil {
			return err
		}
		if err := txn.Set(idKey(msg.ID), key); err != nil {
			return err
		}
		return setJSON(txn, channelKey(channelID), rec)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Edit rewrites the content of a message owned by authorID.
func (s *Store) Edit(ctx context.Context, messageID, authorID, content string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "edit", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	channelID, err := s.locate(messageID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(channelID)
	defer unlock()

	var msg domain.Message
	err = s.db.Update(func(txn *badger.Txn) error {
		key, err := s.ownedMessage(txn, messageID, authorID, &msg)
		if err != nil {
			return err
		}

		updated := s.now().UTC()
		if updated.Before(msg.CreatedAt) {
			updated = msg.CreatedAt
		}
		msg.Content = content
		msg.UpdatedAt = updated
		return setJSON(txn, key, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes a message owned by authorID and returns it.
func (s *Store) Delete(ctx context.Context, messageID, authorID string) (*domain.Message, error) {
	defer observability.ObserveStoreOperation(backendName, "delete", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	channelID, err := s.locate(messageID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(channelID)
	defer unlock()

	var msg domain.Message
	err = s.db.Update(func(txn *badger.Txn) error {
		key, err := s.ownedMessage(txn, messageID, authorID, &msg)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := txn.Delete(idKey(messageID)); err != nil {
			return err
		}

		rec, err := getChannel(txn, channelID)
		if err != nil {
			return err
		}
		rec.Count--
		return setJSON(txn, channelKey(channelID), rec)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// List returns one page of a channel's log, oldest first, and the channel total.
func (s *Store) List(ctx context.Context, channelID string, page, pageSize int) ([]*domain.Message, int, error) {
	defer observability.ObserveStoreOperation(backendName, "list", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	offset, err := domain.PageOffset(page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	messages := make([]*domain.Message, 0)
	var total int
	err = s.db.View(func(txn *badger.Txn) error {
		rec, err := getChannel(txn, channelID)
		if err != nil {
			return err
		}
		total = rec.Count
		if offset >= total {
			return nil
		}

		prefix := messagePrefix(channelID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(messages) < pageSize; it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			var msg domain.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return fmt.Errorf("failed to decode message: %w", err)
			}
			messages = append(messages, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// Create registers a channel under a unique name.
func (s *Store) Create(ctx context.Context, channel *domain.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.Lock(nameLock(channel.Name))
	defer unlock()

	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	channel.CreatedAt = s.now().UTC()
	channel.MessageCount = 0

	return s.db.Update(func(txn *badger.Txn) error {
		taken, err := keyExists(txn, nameKey(channel.Name))
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrChannelNameTaken
		}

		rec := channelRecord{
			ID:          channel.ID,
			Name:        channel.Name,
			Description: channel.Description,
			CreatedAt:   channel.CreatedAt,
		}
		if err := setJSON(txn, channelKey(channel.ID), &rec); err != nil {
			return err
		}
		return txn.Set(nameKey(channel.Name), []byte(channel.ID))
	})
}

// GetByID returns a channel with its message count.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var channel *domain.Channel
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getChannel(txn, id)
		if err != nil {
			return err
		}
		channel = rec.toDomain()
		return nil
	})
	return channel, err
}

// ListChannels returns every channel ordered by creation time.
func (s *Store) ListChannels(ctx context.Context) ([]*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	channels := make([]*domain.Channel, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("ch:")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec channelRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode channel: %w", err)
			}
			channels = append(channels, rec.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(channels, func(i, j int) bool {
		if channels[i].CreatedAt.Equal(channels[j].CreatedAt) {
			return channels[i].Name < channels[j].Name
		}
		return channels[i].CreatedAt.Before(channels[j].CreatedAt)
	})
	return channels, nil
}

// Update applies a partial update to a channel.
func (s *Store) Update(ctx context.Context, id string, update domain.ChannelUpdate) (*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	if update.Name != nil {
		unlockName := s.locks.Lock(nameLock(*update.Name))
		defer unlockName()
	}

	var channel *domain.Channel
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getChannel(txn, id)
		if err != nil {
			return err
		}

		if update.Name != nil && *update.Name != rec.Name {
			taken, err := keyExists(txn, nameKey(*update.Name))
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrChannelNameTaken
			}
			if err := txn.Delete(nameKey(rec.Name)); err != nil {
				return err
			}
			if err := txn.Set(nameKey(*update.Name), []byte(id)); err != nil {
				return err
			}
			rec.Name = *update.Name
		}
		if update.Description != nil {
			desc := *update.Description
			rec.Description = &desc
		}

		if err := setJSON(txn, channelKey(id), rec); err != nil {
			return err
		}
		channel = rec.toDomain()
		return nil
	})
	return channel, err
}

// DeleteChannel removes a channel record and then purges its message log.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getChannel(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(channelKey(id)); err != nil {
			return err
		}
		return txn.Delete(nameKey(rec.Name))
	})
	if err != nil {
		return err
	}

	var keys [][]byte
	err = s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(id)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var msg domain.Message
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			keys = append(keys, item.KeyCopy(nil), idKey(msg.ID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to collect messages of channel %s: %w", id, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("failed to purge messages of channel %s: %w", id, err)
		}
	}
	return wb.Flush()
}

// Exists reports whether a channel is known.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		exists, err = keyExists(txn, channelKey(id))
		return err
	})
	return exists, err
}

// Channels adapts the store to domain.ChannelRepository.
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

func (s *Store) locate(messageID string) (string, error) {
	var channelID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			channelID = channelFromMessageKey(string(val))
			return nil
		})
	})
	return channelID, err
}

func (s *Store) ownedMessage(txn *badger.Txn, messageID, authorID string, msg *domain.Message) ([]byte, error) {
	item, err := txn.Get(idKey(messageID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	if err := getJSON(txn, key, msg); err != nil {
		return nil, err
	}
	if msg.AuthorID != authorID {
		return nil, domain.ErrMessageNotFound
	}
	return key, nil
}

func getChannel(txn *badger.Txn, id string) (*channelRecord, error) {
	var rec channelRecord
	if err := getJSON(txn, channelKey(id), &rec); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *channelRecord) toDomain() *domain.Channel {
	return &domain.Channel{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		CreatedAt:    r.CreatedAt,
		MessageCount: r.Count,
	}
}

func channelKey(id string) []byte {
	return []byte("ch:" + id)
}

func nameKey(name string) []byte {
	return []byte("chname:" + name)
}

func nameLock(name string) string {
	return "name:" + name
}

func messagePrefix(channelID string) []byte {
	return []byte("msg:" + channelID + ":")
}

func messageKey(channelID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", channelID, seq))
}

func idKey(messageID string) []byte {
	return []byte("mid:" + messageID)
}

func channelFromMessageKey(key string) string {
	key = strings.TrimPrefix(key, "msg:")
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
