package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastPolicy() Policy {
	return Policy{Timeout: time.Second, Retries: 2, InitialBackoff: time.Millisecond}
}

func TestDoRetriesUntilBudgetSpent(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), "test", func(context.Context) error {
		calls++
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDoSucceedsAfterFailure(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 2 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), "test", func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDoAppliesAttemptTimeout(t *testing.T) {
	p := Policy{Timeout: 10 * time.Millisecond, Retries: 0}

	err := p.Do(context.Background(), "test", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
