package stats

//go:generate mockgen -source=service.go -destination=../mocks/fetcher_mock.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/cache"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

const (
	flightKey    = "snapshot"
	fetchFailed  = "Failed to fetch WakaTime data"
	staleWarning = "Serving cached WakaTime data after a failed refresh"

	defaultStaleRetry     = time.Minute
	defaultRefreshTimeout = 20 * time.Second
	storeTimeout          = 2 * time.Second
)

// ErrInvalidCacheDuration is reported when the configured cache duration is unusable.
var ErrInvalidCacheDuration = errors.New("WAKATIME_CACHE_DURATION is not a valid number")

// Fetcher retrieves a fresh composite payload from upstream.
type Fetcher interface {
	Fetch(ctx context.Context) (json.RawMessage, error)
}

// Options tune the service. A non-positive CacheDuration makes every call an error.
type Options struct {
	CacheDuration  time.Duration
	StaleRetry     time.Duration
	RefreshTimeout time.Duration
	Now            func() time.Time
}

// Service serves the cached snapshot and refreshes it from upstream once it expires.
type Service struct {
	fetcher Fetcher
	store   cache.Store
	opts    Options
	logger  *slog.Logger
	sgroup  singleflight.Group
}

// New constructs a snapshot service.
func New(fetcher Fetcher, store cache.Store, opts Options, logger *slog.Logger) *Service {
	if opts.StaleRetry <= 0 {
		opts.StaleRetry = defaultStaleRetry
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		logger:  logger.With(slog.String("component", "stats")),
	}
}

// Snapshot returns the current envelope, refreshing from upstream when the cached entry
// has expired. Concurrent callers at expiry share a single upstream fetch.
func (s *Service) Snapshot(ctx context.Context) wakatime.Envelope {
	now := s.opts.Now()

	if s.opts.CacheDuration <= 0 {
		snapshotResponses.WithLabelValues(string(wakatime.StatusError), sourceConfig).Inc()
		return wakatime.Envelope{
			Status:          wakatime.StatusError,
			Error:           ErrInvalidCacheDuration.Error(),
			NextRefreshTime: wakatime.Millis(now.Add(s.opts.StaleRetry)),
		}
	}

	previous, cached := s.load(ctx)
	if cached && previous.FreshAt(now, s.opts.CacheDuration) {
		snapshotResponses.WithLabelValues(string(wakatime.StatusOK), sourceCache).Inc()
		return s.okEnvelope(previous)
	}

	res, err, shared := s.sgroup.Do(flightKey, func() (any, error) {
		return s.refresh(ctx)
	})
	if shared {
		sharedRefreshes.Inc()
	}
	if err == nil {
		snapshotResponses.WithLabelValues(string(wakatime.StatusOK), sourceUpstream).Inc()
		return s.okEnvelope(res.(cache.Entry))
	}

	if cached {
		s.logger.Warn("refresh failed, serving stale snapshot",
			slog.Time("last_fetch", previous.FetchedAt),
			slog.String("error", err.Error()))
		snapshotResponses.WithLabelValues(string(wakatime.StatusStale), sourceCache).Inc()
		return wakatime.Envelope{
			Status:          wakatime.StatusStale,
			Data:            previous.Payload,
			LastFetchTime:   wakatime.Millis(previous.FetchedAt),
			NextRefreshTime: wakatime.Millis(now.Add(s.opts.StaleRetry)),
			Warning:         staleWarning,
		}
	}

	s.logger.Error("refresh failed with nothing cached", slog.String("error", err.Error()))
	snapshotResponses.WithLabelValues(string(wakatime.StatusError), sourceUpstream).Inc()
	return wakatime.Envelope{
		Status:          wakatime.StatusError,
		Error:           fetchFailed,
		NextRefreshTime: wakatime.Millis(now.Add(s.opts.StaleRetry)),
	}
}

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// refresh runs inside the single-flight guard. It is detached from the caller's
// cancellation so one disconnecting client cannot fail the callers sharing the flight.
func (s *Service) refresh(ctx context.Context) (cache.Entry, error) {
	now := s.opts.Now()

	if entry, ok := s.load(ctx); ok && entry.FreshAt(now, s.opts.CacheDuration) {
		return entry, nil
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RefreshTimeout)
	defer cancel()

	start := time.Now()
	payload, err := s.fetcher.Fetch(fetchCtx)
	if err != nil {
		upstreamFetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return cache.Entry{}, err
	}
	upstreamFetchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	entry := cache.Entry{Payload: payload, FetchedAt: now}

	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancelSave()
	if err := s.store.Save(saveCtx, entry); err != nil {
		s.logger.Warn("cache store failed", slog.String("error", err.Error()))
	}

	s.logger.Info("snapshot refreshed", slog.Int("bytes", len(payload)))
	return entry, nil
}

func (s *Service) load(ctx context.Context) (cache.Entry, bool) {
	entry, ok, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("cache load failed", slog.String("error", err.Error()))
		return cache.Entry{}, false
	}
	return entry, ok
}

func (s *Service) okEnvelope(entry cache.Entry) wakatime.Envelope {
	last := wakatime.Millis(entry.FetchedAt)
	return wakatime.Envelope{
		Status:          wakatime.StatusOK,
		Data:            entry.Payload,
		LastFetchTime:   last,
		NextRefreshTime: last + s.opts.CacheDuration.Milliseconds(),
	}
}
