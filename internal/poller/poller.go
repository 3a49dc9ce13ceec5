package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

const (
	DefaultFallbackRetry = 30 * time.Second
	DefaultTickInterval  = time.Second
)

// Source fetches one envelope from the proxy.
type Source interface {
	Fetch(ctx context.Context) (*Response, error)
}

// Result is the outcome of one poll. NextPoll is zero when no refresh was scheduled.
type Result struct {
	Response  *Response
	Err       error
	FetchedAt time.Time
	NextPoll  time.Time
}

// Observer is notified after every poll and on every countdown tick.
type Observer interface {
	Update(res Result)
	Countdown(remaining time.Duration)
}

// Options tune the poll loop.
type Options struct {
	FallbackRetry time.Duration
	TickInterval  time.Duration
	Now           func() time.Time
}

// Poller fetches the snapshot, then sleeps until the time the proxy declared for the
// next refresh. At most one timer is pending and at most one fetch runs at a time.
type Poller struct {
	src      Source
	obs      Observer
	opts     Options
	logger   *slog.Logger
	inFlight atomic.Bool
	trigger  chan struct{}
}

// New constructs a poller.
func New(src Source, obs Observer, opts Options, logger *slog.Logger) *Poller {
	if opts.FallbackRetry <= 0 {
		opts.FallbackRetry = DefaultFallbackRetry
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Poller{
		src:     src,
		obs:     obs,
		opts:    opts,
		logger:  logger.With(slog.String("component", "poller")),
		trigger: make(chan struct{}, 1),
	}
}

// Trigger asks for an immediate refresh. It reports false when the request was dropped
// because a fetch is in flight or another trigger is already queued.
func (p *Poller) Trigger() bool {
	if p.inFlight.Load() {
		return false
	}
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run polls once immediately and then follows the server-declared schedule until ctx
// is cancelled. All timers are stopped on return.
func (p *Poller) Run(ctx context.Context) error {
	var s schedule
	defer s.stop()

	poll := func() {
		s.stop()
		res := p.poll(ctx)
		p.drainTrigger()
		if !res.NextPoll.IsZero() {
			s.start(res.NextPoll.Sub(res.FetchedAt), p.opts.TickInterval)
		}
		p.obs.Update(res)
		if !res.NextPoll.IsZero() {
			p.obs.Countdown(s.remaining())
		}
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.timerC:
			p.obs.Countdown(0)
			poll()
		case <-p.trigger:
			poll()
		case <-s.tickC:
			remaining := s.remaining()
			if remaining <= 0 {
				s.stopTicker()
			}
			p.obs.Countdown(remaining)
		}
	}
}

func (p *Poller) poll(ctx context.Context) Result {
	p.inFlight.Store(true)
	defer p.inFlight.Store(false)

	resp, err := p.src.Fetch(ctx)
	now := p.opts.Now()
	if err != nil {
		p.logger.Warn("fetch failed, retrying later",
			slog.Duration("retry_in", p.opts.FallbackRetry),
			slog.String("error", err.Error()))
		return Result{Err: err, FetchedAt: now, NextPoll: now.Add(p.opts.FallbackRetry)}
	}

	res := Result{Response: resp, FetchedAt: now}
	if d, ok := DelayUntil(resp.Envelope, now); ok {
		res.NextPoll = now.Add(d)
	} else {
		p.logger.Warn("missing or invalid nextRefreshTime", slog.Int64("next_refresh_time", resp.Envelope.NextRefreshTime))
	}
	return res
}

func (p *Poller) drainTrigger() {
	select {
	case <-p.trigger:
	default:
	}
}

// DelayUntil returns how long to wait before the refresh the envelope asks for.
// It reports false when the envelope carries no usable future time.
func DelayUntil(env wakatime.Envelope, now time.Time) (time.Duration, bool) {
	next := env.NextRefresh()
	if next.IsZero() {
		return 0, false
	}
	d := next.Sub(now)
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// schedule owns the single pending refresh timer and its countdown ticker.
type schedule struct {
	timer    *time.Timer
	ticker   *time.Ticker
	timerC   <-chan time.Time
	tickC    <-chan time.Time
	deadline time.Time
}

// start arms the timer for delay and a countdown ticker firing every tick.
func (s *schedule) start(delay, tick time.Duration) {
	s.stop()
	s.deadline = time.Now().Add(delay)
	s.timer = time.NewTimer(delay)
	s.timerC = s.timer.C
	s.ticker = time.NewTicker(tick)
	s.tickC = s.ticker.C
}

func (s *schedule) remaining() time.Duration {
	if s.deadline.IsZero() {
		return 0
	}
	d := time.Until(s.deadline)
	if d < 0 {
		return 0
	}
	return d
}

func (s *schedule) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.tickC = nil
}

func (s *schedule) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerC = nil
	s.stopTicker()
	s.deadline = time.Time{}
}
