// Package ratelimit keeps outbound WHOOP API calls under the upstream quotas.
//
// Two fixed windows are tracked: a per-minute bucket and a per-day bucket.
// A bucket is refilled to full, all at once, the first time Acquire runs
// after its window has elapsed. There is no background timer and no
// sliding window.
//
// FLOW (Acquire):
//  1. refill any bucket whose window elapsed
//  2. day bucket empty    → fail with the daily limit error
//  3. minute bucket empty → sleep until the minute window ends, go to 1
//  4. take one token from both buckets
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/metrics"
)

const (
	DefaultPerMinute = 90
	DefaultPerDay    = 9500

	minWait = time.Second
)

type Config struct {
	PerMinute int
	PerDay    int
}

// Limiter is safe for concurrent use. Callers that have to wait hold the
// lock while sleeping, so waiters are served one at a time.
type Limiter struct {
	mu sync.Mutex

	perMinute int
	perDay    int

	minuteTokens int
	dayTokens    int
	minuteReset  time.Time // last minute refill
	dayReset     time.Time // last day refill

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// Option customises a Limiter. Used by tests to control time.
type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Limiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = DefaultPerMinute
	}
	if cfg.PerDay <= 0 {
		cfg.PerDay = DefaultPerDay
	}
	l := &Limiter{
		perMinute: cfg.PerMinute,
		perDay:    cfg.PerDay,
		now:       time.Now,
		sleep:     Sleep,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	now := l.now()
	l.minuteTokens, l.dayTokens = l.perMinute, l.perDay
	l.minuteReset, l.dayReset = now, now
	return l
}

// Acquire blocks until a request may be sent, or returns the daily limit
// error. Cancelling ctx aborts a minute-window wait.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		l.refill()

		if l.dayTokens <= 0 {
			l.logger.Warn("daily request budget exhausted",
				slog.Int("per_day", l.perDay),
				slog.Time("window_started", l.dayReset))
			return apperror.DailyLimit()
		}
		if l.minuteTokens > 0 {
			break
		}

		wait := time.Minute - l.now().Sub(l.minuteReset)
		if wait < minWait {
			wait = minWait
		}
		l.logger.Info("minute rate limit reached, waiting",
			slog.Duration("wait", wait))
		metrics.RateLimitWaits.Inc()
		metrics.RateLimitWaitSeconds.Add(wait.Seconds())

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.minuteTokens--
	l.dayTokens--
	metrics.RateLimitRemaining.WithLabelValues("minute").Set(float64(l.minuteTokens))
	metrics.RateLimitRemaining.WithLabelValues("day").Set(float64(l.dayTokens))
	return nil
}

// refill resets any bucket whose fixed window has elapsed. Caller holds mu.
func (l *Limiter) refill() {
	now := l.now()
	if now.Sub(l.minuteReset) >= time.Minute {
		l.minuteTokens = l.perMinute
		l.minuteReset = now
	}
	if now.Sub(l.dayReset) >= 24*time.Hour {
		l.dayTokens = l.perDay
		l.dayReset = now
	}
}

// Snapshot reports the remaining tokens without consuming any.
type Snapshot struct {
	MinuteRemaining int       `json:"minute_remaining"`
	DayRemaining    int       `json:"day_remaining"`
	MinuteResetAt   time.Time `json:"minute_reset_at"`
	DayResetAt      time.Time `json:"day_reset_at"`
}

func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return Snapshot{
		MinuteRemaining: l.minuteTokens,
		DayRemaining:    l.dayTokens,
		MinuteResetAt:   l.minuteReset.Add(time.Minute),
		DayResetAt:      l.dayReset.Add(24 * time.Hour),
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
