package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/cache"
)

const defaultTimeout = 2 * time.Second

var _ cache.Store = (*Store)(nil)

// Store implements cache.Store backed by a single Redis key.
type Store struct {
	client *redis.Client
	key    string
}

type envelope struct {
	StoredAt time.Time `msgpack:"stored_at"`
	Payload  []byte    `msgpack:"payload"`
}

// New constructs a Redis-backed snapshot store and verifies the connection.
func New(rawURL, key string) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	s := NewWithClient(redis.NewClient(opts), key)

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close()
		return nil, err
	}

	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, key string) *Store {
	return &Store{client: client, key: key}
}

// Client returns the underlying redis client.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close terminates the underlying Redis client connections.
func (s *Store) Close() error {
	return s.client.Close()
}

// Load retrieves the snapshot if present.
func (s *Store) Load(ctx context.Context) (cache.Entry, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("redis get %q: %w", s.key, err)
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode cached snapshot %q: %w", s.key, err)
	}
	if len(env.Payload) == 0 {
		return cache.Entry{}, false, nil
	}

	return cache.Entry{
		Payload:   env.Payload,
		FetchedAt: env.StoredAt,
	}, true, nil
}

// Save overwrites the snapshot. The key carries no TTL; freshness is judged from StoredAt.
func (s *Store) Save(ctx context.Context, entry cache.Entry) error {
	data, err := msgpack.Marshal(envelope{
		StoredAt: entry.FetchedAt.UTC(),
		Payload:  append([]byte(nil), entry.Payload...),
	})
	if err != nil {
		return fmt.Errorf("encode cached snapshot %q: %w", s.key, err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", s.key, err)
	}

	return nil
}
