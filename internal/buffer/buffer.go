// Package buffer accumulates the raw fragments of a message burst per
// conversation until the debounce window closes and the dispatcher flushes
// them as one query.
package buffer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ListStore is the slice of list-store operations the buffer needs. Backed by
// Redis in production; tests supply an in-memory fake.
type ListStore interface {
	RPush(ctx context.Context, key, value string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	LRange(ctx context.Context, key string) ([]string, error)
	Del(ctx context.Context, key string) error
}

// Store is the conversation buffer: an ordered, TTL-bounded message queue per
// conversation key. The TTL slides on every append so an abandoned burst is
// reaped even if the process dies before flushing it.
type Store struct {
	list   ListStore
	suffix string
	ttl    time.Duration
}

// New creates a Store. suffix is appended to every conversation key to
// namespace buffer entries in a shared store; ttl bounds how long an
// unflushed queue survives.
func New(list ListStore, suffix string, ttl time.Duration) *Store {
	return &Store{list: list, suffix: suffix, ttl: ttl}
}

func (s *Store) bufferKey(key string) string {
	return key + s.suffix
}

// Append adds text to the queue for key and resets the queue's TTL.
func (s *Store) Append(ctx context.Context, key, text string) error {
	bk := s.bufferKey(key)
	if err := s.list.RPush(ctx, bk, text); err != nil {
		return fmt.Errorf("appending to buffer %s: %w", bk, err)
	}
	if err := s.list.Expire(ctx, bk, s.ttl); err != nil {
		return fmt.Errorf("refreshing buffer ttl %s: %w", bk, err)
	}
	return nil
}

// Flush returns the full ordered queue contents for key.
func (s *Store) Flush(ctx context.Context, key string) ([]string, error) {
	bk := s.bufferKey(key)
	msgs, err := s.list.LRange(ctx, bk)
	if err != nil {
		return nil, fmt.Errorf("reading buffer %s: %w", bk, err)
	}
	return msgs, nil
}

// Clear removes the queue for key. Clearing an absent key is a no-op.
func (s *Store) Clear(ctx context.Context, key string) error {
	bk := s.bufferKey(key)
	if err := s.list.Del(ctx, bk); err != nil {
		return fmt.Errorf("clearing buffer %s: %w", bk, err)
	}
	return nil
}

// RedisList implements ListStore on a Redis connection.
type RedisList struct {
	rdb *redis.Client
}

// NewRedisList connects to Redis using a redis:// URL.
func NewRedisList(url string) (*RedisList, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisList{rdb: redis.NewClient(opt)}, nil
}

// Ping verifies the connection is alive.
func (r *RedisList) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (r *RedisList) Close() error {
	return r.rdb.Close()
}

func (r *RedisList) RPush(ctx context.Context, key, value string) error {
	return r.rdb.RPush(ctx, key, value).Err()
}

func (r *RedisList) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.rdb.Expire(ctx, key, ttl).Err()
}

func (r *RedisList) LRange(ctx context.Context, key string) ([]string, error) {
	return r.rdb.LRange(ctx, key, 0, -1).Result()
}

func (r *RedisList) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}
