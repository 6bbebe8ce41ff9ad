package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_SucceedsFirstAttempt(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, slog.Default())

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_RetriesThenSucceeds(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, slog.Default())

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, slog.Default())

	sentinel := errors.New("down")
	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestPolicy_DelayDoubles(t *testing.T) {
	initial := 20 * time.Millisecond
	p := NewPolicy(3, initial, slog.Default())

	var timestamps []time.Time
	_ = p.Do(context.Background(), "op", func() error {
		timestamps = append(timestamps, time.Now())
		return errors.New("down")
	})

	require.Len(t, timestamps, 3)
	firstGap := timestamps[1].Sub(timestamps[0])
	secondGap := timestamps[2].Sub(timestamps[1])

	assert.GreaterOrEqual(t, firstGap, initial)
	assert.GreaterOrEqual(t, secondGap, 2*initial)
}

func TestPolicy_ContextCancelStopsBackoff(t *testing.T) {
	p := NewPolicy(5, time.Hour, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, "op", func() error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
