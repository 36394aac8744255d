package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 5, config.MaxRetries)
	assert.Equal(t, time.Second, config.InitialInterval)
	assert.Equal(t, 30*time.Second, config.MaxInterval)
	assert.Equal(t, 2.0, config.Multiplier)
	assert.Equal(t, 0.1, config.JitterFactor)
}

func TestNew_FillsZeroValues(t *testing.T) {
	original := &Config{JitterFactor: 3}
	r := New(original)

	assert.Equal(t, time.Second, r.config.InitialInterval)
	assert.Equal(t, 30*time.Second, r.config.MaxInterval)
	assert.Equal(t, 2.0, r.config.Multiplier)
	assert.Equal(t, 1.0, r.config.JitterFactor)
	assert.Equal(t, time.Duration(0), original.InitialInterval, "caller config must not be mutated")
}

func TestRetrier_Do_Success(t *testing.T) {
	calls := 0
	result := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, result.Err)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Do_SuccessAfterRetries(t *testing.T) {
	calls := 0
	result := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	boom := errors.New("still failing")
	result := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, result.Err, ErrMaxRetriesExceeded)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, boom, result.LastError)
}

func TestRetrier_Do_PermanentError(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	result := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(boom)
	})

	assert.Equal(t, boom, result.Err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(Permanent(boom)))
	assert.False(t, IsPermanent(boom))
	assert.Nil(t, Permanent(nil))
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	result := New(&Config{MaxRetries: 5, InitialInterval: time.Second}).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, result.Err, ErrContextCanceled)
	assert.Equal(t, 1, calls)
}

func TestRetrier_DoWithCallback(t *testing.T) {
	var seen []int
	New(fastConfig(2)).DoWithCallback(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	}, func(attempt int, err error, next time.Duration) {
		seen = append(seen, attempt)
		assert.Greater(t, next, time.Duration(0))
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestInterval_ExponentialAndCapped(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: 350 * time.Millisecond, Multiplier: 2})

	assert.Equal(t, 100*time.Millisecond, r.interval(0))
	assert.Equal(t, 200*time.Millisecond, r.interval(1))
	assert.Equal(t, 350*time.Millisecond, r.interval(2))
}

func TestInterval_JitterStaysInBounds(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2, JitterFactor: 0.1})

	for i := 0; i < 50; i++ {
		d := r.interval(0)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}
