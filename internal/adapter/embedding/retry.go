package embedding

import (
	"context"
	"math"
	"math/rand"
	"time"

	"storefront/config"
	"storefront/internal/logger"
)

// Retrier re-runs a failing call with exponential backoff. Rate-limited
// failures back off on powers of two; anything else on powers of 1.5.
type Retrier struct {
	MaxRetries   int
	InitialDelay time.Duration

	// Sleep and Jitter are swapped out in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration

	log *logger.Logger
}

func NewRetrier(cfg config.RetryConfig, log *logger.Logger) *Retrier {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Retrier{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		Sleep:        sleepContext,
		Jitter:       randomJitter,
		log:          log.WithComponent("retry"),
	}
}

// Do calls fn until it succeeds or MaxRetries retries have failed, in which
// case the last error is returned unchanged.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.MaxRetries || ctx.Err() != nil {
			return err
		}

		limited := IsRateLimited(err)
		wait := r.Backoff(attempt, limited)
		if limited {
			r.log.Warn("rate limit hit, retrying", logger.F("op", op), logger.F("attempt", attempt+1), logger.F("wait", wait))
		} else {
			r.log.Warn("call failed, retrying", logger.F("op", op), logger.F("attempt", attempt+1), logger.F("wait", wait), logger.Err(err))
		}

		if serr := r.Sleep(ctx, wait); serr != nil {
			return err
		}
	}
}

// Backoff returns the wait before retry number attempt+1.
func (r *Retrier) Backoff(attempt int, rateLimited bool) time.Duration {
	base := float64(r.InitialDelay)
	if rateLimited {
		return time.Duration(base*math.Pow(2, float64(attempt))) + r.Jitter(time.Second)
	}
	return time.Duration(base*math.Pow(1.5, float64(attempt))) + r.Jitter(500*time.Millisecond)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
