// Package retry re-issues failed calls a bounded number of times with a fixed
// or doubling delay. Every failure class is retried the same way; there is no
// jitter and no circuit breaker.
package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/m365dash/internal/metrics"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 2 * time.Second
)

// Policy bounds a retry loop. MaxAttempts counts the first call, so
// MaxAttempts=3 means at most two retries.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Exponential doubles Delay after every failed attempt instead of keeping it fixed.
	Exponential bool
}

// DefaultPolicy is three attempts two seconds apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff() backoff.BackOff {
	var b backoff.BackOff
	if p.Exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		eb.RandomizationFactor = 0
		eb.Multiplier = 2
		eb.MaxInterval = time.Duration(math.MaxInt64)
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Delay)
	}
	return backoff.WithMaxRetries(b, uint64(p.attempts()-1))
}

// Do calls op until it succeeds or the policy is exhausted, and returns the
// last error unchanged so callers can inspect it with errors.Is/As.
// Cancelling ctx stops the wait between attempts.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(p.backOff(), ctx), func(err error, wait time.Duration) {
		metrics.RetryAttempts.WithLabelValues("retry").Inc()
		slog.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", p.attempts(),
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		metrics.RetryAttempts.WithLabelValues("exhausted").Inc()
		return err
	}
	metrics.RetryAttempts.WithLabelValues("success").Inc()
	return nil
}
