package wakatime

import (
	"encoding/json"
	"time"
)

// Status tags an Envelope.
type Status string

const (
	// StatusOK carries data fetched just now or still inside the cache window.
	StatusOK Status = "ok"
	// StatusStale carries the previous snapshot after a failed refresh.
	StatusStale Status = "stale"
	// StatusError means the refresh failed and nothing was cached.
	StatusError Status = "error"
)

// Valid reports whether s is one of the known tags.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusStale, StatusError:
		return true
	default:
		return false
	}
}

// Envelope is the JSON body served by GET /api/wakatime. Timestamps are Unix milliseconds.
type Envelope struct {
	Status          Status          `json:"status"`
	Data            json.RawMessage `json:"data,omitempty"`
	Error           string          `json:"error,omitempty"`
	LastFetchTime   int64           `json:"lastFetchTime"`
	NextRefreshTime int64           `json:"nextRefreshTime"`
	Warning         string          `json:"warning,omitempty"`
}

// NextRefresh returns NextRefreshTime as a time.Time, or the zero time when unset.
func (e Envelope) NextRefresh() time.Time {
	if e.NextRefreshTime <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.NextRefreshTime)
}

// LastFetch returns LastFetchTime as a time.Time, or the zero time when unset.
func (e Envelope) LastFetch() time.Time {
	if e.LastFetchTime <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.LastFetchTime)
}

// Payload is the composite of both upstream documents, kept as raw JSON so the proxy
// never reshapes what WakaTime returned.
type Payload struct {
	CodingActivity json.RawMessage `json:"codingActivityData"`
	Languages      json.RawMessage `json:"languagesActivityData,omitempty"`
}

// Snapshot is Payload decoded into the shapes the display uses.
type Snapshot struct {
	CodingActivity *CodingActivity `json:"codingActivityData"`
	Languages      *Languages      `json:"languagesActivityData,omitempty"`
}

// Millis converts t to Unix milliseconds, mapping the zero time to 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
