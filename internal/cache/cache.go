package cache

//go:generate mockgen -source=cache.go -destination=../mocks/store_mock.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is the last successfully fetched snapshot and the time it was fetched.
type Entry struct {
	Payload   json.RawMessage
	FetchedAt time.Time
}

// Empty reports whether the entry holds no payload.
func (e Entry) Empty() bool {
	return len(e.Payload) == 0
}

// FreshAt reports whether the entry is still inside its validity window at now.
func (e Entry) FreshAt(now time.Time, ttl time.Duration) bool {
	if e.Empty() || e.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(e.FetchedAt) < ttl
}

// Store holds a single snapshot entry. Implementations are safe for concurrent use.
type Store interface {
	Load(ctx context.Context) (Entry, bool, error)
	Save(ctx context.Context, entry Entry) error
}
