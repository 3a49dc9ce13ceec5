package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedSource struct {
	mu        sync.Mutex
	calls     []time.Time
	active    atomic.Int32
	maxActive atomic.Int32
	respond   func(n int) (*Response, error)
}

func (s *scriptedSource) Fetch(context.Context) (*Response, error) {
	cur := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		prev := s.maxActive.Load()
		if cur <= prev || s.maxActive.CompareAndSwap(prev, cur) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, time.Now())
	n := len(s.calls)
	s.mu.Unlock()

	return s.respond(n)
}

func (s *scriptedSource) callTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.calls...)
}

type recorder struct {
	mu         sync.Mutex
	updates    []Result
	countdowns []time.Duration
}

func (r *recorder) Update(res Result) {
	r.mu.Lock()
	r.updates = append(r.updates, res)
	r.mu.Unlock()
}

func (r *recorder) Countdown(remaining time.Duration) {
	r.mu.Lock()
	r.countdowns = append(r.countdowns, remaining)
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]Result, []time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.updates...), append([]time.Duration(nil), r.countdowns...)
}

func okResponse(next time.Time) *Response {
	return &Response{
		Envelope: wakatime.Envelope{
			Status:          wakatime.StatusOK,
			LastFetchTime:   time.Now().UnixMilli(),
			NextRefreshTime: next.UnixMilli(),
		},
		Snapshot: &wakatime.Snapshot{CodingActivity: &wakatime.CodingActivity{}},
	}
}

func runAsync(ctx context.Context, p *Poller) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestDelayUntil(t *testing.T) {
	now := time.UnixMilli(1_760_000_000_000)

	d, ok := DelayUntil(wakatime.Envelope{NextRefreshTime: now.UnixMilli() + 5000}, now)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	_, ok = DelayUntil(wakatime.Envelope{NextRefreshTime: now.UnixMilli() - 1}, now)
	assert.False(t, ok)

	_, ok = DelayUntil(wakatime.Envelope{NextRefreshTime: now.UnixMilli()}, now)
	assert.False(t, ok)

	_, ok = DelayUntil(wakatime.Envelope{}, now)
	assert.False(t, ok)
}

func TestRun_SchedulesOneRefetchAtDeclaredTime(t *testing.T) {
	const declared = 150 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{respond: func(n int) (*Response, error) {
		if n == 2 {
			cancel()
		}
		return okResponse(time.Now().Add(declared)), nil
	}}
	rec := &recorder{}
	p := New(src, rec, Options{TickInterval: 20 * time.Millisecond}, newTestLogger())

	waitDone(t, runAsync(ctx, p))

	calls := src.callTimes()
	require.Len(t, calls, 2)
	gap := calls[1].Sub(calls[0])
	assert.GreaterOrEqual(t, gap, declared-10*time.Millisecond)
	assert.Less(t, gap, declared+300*time.Millisecond)

	updates, countdowns := rec.snapshot()
	require.Len(t, updates, 2)
	assert.NoError(t, updates[0].Err)
	assert.False(t, updates[0].NextPoll.IsZero())

	zero := -1
	for i, c := range countdowns {
		if c == 0 {
			zero = i
			break
		}
	}
	require.NotEqual(t, -1, zero, "countdown must reach zero")
	assert.GreaterOrEqual(t, zero, 2, "countdown must tick before reaching zero")
	for i := 1; i <= zero; i++ {
		assert.LessOrEqual(t, countdowns[i], countdowns[i-1])
	}
}

func TestRun_FallbackRetryOnError(t *testing.T) {
	const fallback = 60 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{respond: func(n int) (*Response, error) {
		if n == 1 {
			return nil, errors.New("HTTP error! Status: 500")
		}
		cancel()
		return okResponse(time.Now().Add(time.Hour)), nil
	}}
	rec := &recorder{}
	p := New(src, rec, Options{FallbackRetry: fallback, TickInterval: 10 * time.Millisecond}, newTestLogger())

	waitDone(t, runAsync(ctx, p))

	calls := src.callTimes()
	require.Len(t, calls, 2)
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), fallback-10*time.Millisecond)

	updates, _ := rec.snapshot()
	require.NotEmpty(t, updates)
	assert.Error(t, updates[0].Err)
	assert.Equal(t, fallback, updates[0].NextPoll.Sub(updates[0].FetchedAt))
}

func TestRun_NoRefetchWithoutFutureRefreshTime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{respond: func(int) (*Response, error) {
		return okResponse(time.Now().Add(-time.Second)), nil
	}}
	rec := &recorder{}
	p := New(src, rec, Options{TickInterval: 10 * time.Millisecond}, newTestLogger())
	done := runAsync(ctx, p)

	require.Eventually(t, func() bool { return len(src.callTimes()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, src.callTimes(), 1)

	updates, _ := rec.snapshot()
	require.Len(t, updates, 1)
	assert.True(t, updates[0].NextPoll.IsZero())

	assert.True(t, p.Trigger())
	require.Eventually(t, func() bool { return len(src.callTimes()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	waitDone(t, done)
}

func TestRun_TriggerDroppedWhileFetchInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	src := &scriptedSource{respond: func(n int) (*Response, error) {
		if n == 1 {
			close(started)
			<-release
		}
		return okResponse(time.Now().Add(time.Hour)), nil
	}}
	p := New(src, &recorder{}, Options{TickInterval: 10 * time.Millisecond}, newTestLogger())
	done := runAsync(ctx, p)

	<-started
	for i := 0; i < 5; i++ {
		assert.False(t, p.Trigger(), "trigger must be dropped while a fetch is in flight")
	}
	close(release)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, src.callTimes(), 1)
	assert.Equal(t, int32(1), src.maxActive.Load())

	cancel()
	waitDone(t, done)
}

func TestRun_StopsTimersOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := &scriptedSource{respond: func(int) (*Response, error) {
		return okResponse(time.Now().Add(50 * time.Millisecond)), nil
	}}
	p := New(src, &recorder{}, Options{TickInterval: 10 * time.Millisecond}, newTestLogger())
	done := runAsync(ctx, p)

	require.Eventually(t, func() bool { return len(src.callTimes()) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	waitDone(t, done)

	after := len(src.callTimes())
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, after, len(src.callTimes()))
}
