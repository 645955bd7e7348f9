package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithRetry(t *testing.T) {
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")

	tests := []struct {
		name       string
		failures   []error
		maxRetries int
		wantErr    error
		wantCalls  int
		wantSleeps []time.Duration
	}{
		{name: "first try", maxRetries: 3, wantCalls: 1},
		{
			name:       "recovers",
			failures:   []error{errTransient, errTransient},
			maxRetries: 3,
			wantCalls:  3,
			wantSleeps: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		},
		{
			name:       "exhausted",
			failures:   []error{errTransient, errTransient, errTransient},
			maxRetries: 2,
			wantErr:    errTransient,
			wantCalls:  3,
			wantSleeps: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		},
		{
			name:       "not retryable",
			failures:   []error{errFatal},
			maxRetries: 5,
			wantErr:    errFatal,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sleeps []time.Duration
			sleep := func(_ context.Context, d time.Duration) error {
				sleeps = append(sleeps, d)
				return nil
			}
			calls := 0
			err := withRetry(context.Background(), sleep, tt.maxRetries, 10*time.Millisecond,
				func(err error) bool { return errors.Is(err, errTransient) },
				func(context.Context) error {
					calls++
					if calls <= len(tt.failures) {
						return tt.failures[calls-1]
					}
					return nil
				})

			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantSleeps, sleeps)
		})
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, sleepContext, 5, time.Hour, nil, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(100))

	assert.Equal(t, time.Second, Backoff{}.Delay(0))
	assert.Equal(t, 4*time.Second, Backoff{}.Delay(2))
}
