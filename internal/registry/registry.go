// Package registry tracks which live connections subscribe to which channels.
//
// Both directions of the membership relation are kept: channel to
// subscribers for fan-out, connection to channels for cleanup on disconnect.
// Each direction is split into shards keyed by an xxhash of the id so that
// traffic on unrelated channels does not contend on one lock.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"

	"teamchat/internal/observability"
)

const shardCount = 32

// ChannelChecker answers whether a channel exists
type ChannelChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// ExistenceCache remembers channels known to exist. Only positive answers are
// cached, so a newly created channel is never reported missing.
type ExistenceCache interface {
	Get(ctx context.Context, channelID string) (bool, error)
	Set(ctx context.Context, channelID string) error
	Delete(ctx context.Context, channelID string) error
}

type shard struct {
	mu   sync.RWMutex
	sets map[string]map[string]struct{}
}

// Registry is safe for concurrent use
type Registry struct {
	channels ChannelChecker
	cache    ExistenceCache

	subscribers [shardCount]*shard
	memberships [shardCount]*shard
}

// New creates a registry. cache may be nil.
func New(channels ChannelChecker, cache ExistenceCache) *Registry {
	r := &Registry{channels: channels, cache: cache}
	for i := 0; i < shardCount; i++ {
		r.subscribers[i] = &shard{sets: make(map[string]map[string]struct{})}
		r.memberships[i] = &shard{sets: make(map[string]map[string]struct{})}
	}
	return r
}

func shardFor(shards *[shardCount]*shard, key string) *shard {
	return shards[xxhash.Sum64String(key)%shardCount]
}

// Subscribe adds connID to channelID. It reports false when the
// subscription already existed.
func (r *Registry) Subscribe(connID, channelID string) bool {
	members := shardFor(&r.memberships, connID)
	subs := shardFor(&r.subscribers, channelID)

	members.mu.Lock()
	defer members.mu.Unlock()

	if !add(members.sets, connID, channelID) {
		return false
	}

	subs.mu.Lock()
	add(subs.sets, channelID, connID)
	subs.mu.Unlock()
	return true
}

// Unsubscribe removes connID from channelID. It reports false when there was
// nothing to remove.
func (r *Registry) Unsubscribe(connID, channelID string) bool {
	members := shardFor(&r.memberships, connID)
	subs := shardFor(&r.subscribers, channelID)

	members.mu.Lock()
	defer members.mu.Unlock()

	if !remove(members.sets, connID, channelID) {
		return false
	}

	subs.mu.Lock()
	remove(subs.sets, channelID, connID)
	subs.mu.Unlock()
	return true
}

// RemoveConnection drops every subscription held by connID and returns the
// channels it was subscribed to.
func (r *Registry) RemoveConnection(connID string) []string {
	members := shardFor(&r.memberships, connID)

	members.mu.Lock()
	defer members.mu.Unlock()

	set := members.sets[connID]
	delete(members.sets, connID)

	channels := make([]string, 0, len(set))
	for channelID := range set {
		subs := shardFor(&r.subscribers, channelID)
		subs.mu.Lock()
		remove(subs.sets, channelID, connID)
		subs.mu.Unlock()
		channels = append(channels, channelID)
	}
	return channels
}

// SubscribersOf returns a snapshot of the connections subscribed to channelID.
func (r *Registry) SubscribersOf(channelID string) []string {
	subs := shardFor(&r.subscribers, channelID)

	subs.mu.RLock()
	defer subs.mu.RUnlock()

	set := subs.sets[channelID]
	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	return out
}

// ChannelsOf returns a snapshot of the channels connID subscribes to.
func (r *Registry) ChannelsOf(connID string) []string {
	members := shardFor(&r.memberships, connID)

	members.mu.RLock()
	defer members.mu.RUnlock()

	set := members.sets[connID]
	out := make([]string, 0, len(set))
	for channelID := range set {
		out = append(out, channelID)
	}
	return out
}

// IsSubscribed reports whether connID currently subscribes to channelID.
func (r *Registry) IsSubscribed(connID, channelID string) bool {
	members := shardFor(&r.memberships, connID)

	members.mu.RLock()
	defer members.mu.RUnlock()
	_, ok := members.sets[connID][channelID]
	return ok
}

// Exists reports whether channelID names a known channel, consulting the
// cache first when one is configured. Cache failures fall back to the
// channel store.
func (r *Registry) Exists(ctx context.Context, channelID string) (bool, error) {
	log := observability.FromContext(ctx)

	if r.cache != nil {
		hit, err := r.cache.Get(ctx, channelID)
		switch {
		case err != nil:
			observability.ChannelCacheLookups.WithLabelValues("error").Inc()
			log.Warn("channel cache lookup failed", slog.String("channel_id", channelID), slog.Any("error", err))
		case hit:
			observability.ChannelCacheLookups.WithLabelValues("hit").Inc()
			return true, nil
		default:
			observability.ChannelCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	exists, err := r.channels.Exists(ctx, channelID)
	if err != nil {
		return false, err
	}

	if exists && r.cache != nil {
		if err := r.cache.Set(ctx, channelID); err != nil {
			log.Warn("channel cache write failed", slog.String("channel_id", channelID), slog.Any("error", err))
		}
	}
	return exists, nil
}

// Forget evicts channelID from the existence cache.
func (r *Registry) Forget(ctx context.Context, channelID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, channelID); err != nil {
		observability.FromContext(ctx).Warn("channel cache eviction failed",
			slog.String("channel_id", channelID), slog.Any("error", err))
	}
}

func add(sets map[string]map[string]struct{}, key, member string) bool {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]struct{})
		sets[key] = set
	}
	if _, exists := set[member]; exists {
		return false
	}
	set[member] = struct{}{}
	return true
}

func remove(sets map[string]map[string]struct{}, key, member string) bool {
	set, ok := sets[key]
	if !ok {
		return false
	}
	if _, exists := set[member]; !exists {
		return false
	}
	delete(set, member)
	if len(set) == 0 {
		delete(sets, key)
	}
	return true
}
