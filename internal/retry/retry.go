// Package retry bounds outbound calls with per-attempt timeouts and exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Policy describes how an outbound call is retried.
type Policy struct {
	Timeout        time.Duration // per attempt, zero disables
	Retries        uint64        // attempts after the first
	InitialBackoff time.Duration
}

// Default is two retries starting at 500ms with a 15s attempt timeout.
var Default = Policy{Timeout: 15 * time.Second, Retries: 2, InitialBackoff: 500 * time.Millisecond}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, returns a Permanent error, the retry budget
// is spent or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		actx, cancel := p.attemptContext(ctx)
		defer cancel()
		return fn(actx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("outbound call failed, retrying")
	}

	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, p.Retries), ctx), notify)
}

func (p Policy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}
