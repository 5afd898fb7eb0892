package common

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 2 * time.Second, Multiplier: 2.0, MaxAttempts: 4}

	assert.Equal(t, time.Duration(0), b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 8*time.Second, b.Delay(4))
}

func TestBackoff_Retry_SucceedsFirstAttempt(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Multiplier: 2.0, MaxAttempts: 3}

	calls := 0
	err := b.Retry(context.Background(), arbor.NewLogger(), "probe", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_Retry_SucceedsAfterFailure(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Multiplier: 2.0, MaxAttempts: 3}

	calls := 0
	err := b.Retry(context.Background(), arbor.NewLogger(), "probe", func() error {
		calls++
		if calls < 2 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBackoff_Retry_ExhaustsAttempts(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Multiplier: 2.0, MaxAttempts: 2}

	calls := 0
	err := b.Retry(context.Background(), arbor.NewLogger(), "capture", func() error {
		calls++
		return fmt.Errorf("still broken")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "still broken")
}

func TestBackoff_Retry_CancelledDuringBackoff(t *testing.T) {
	b := Backoff{Initial: time.Hour, Multiplier: 2.0, MaxAttempts: 2}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := b.Retry(ctx, arbor.NewLogger(), "capture", func() error {
		calls++
		return fmt.Errorf("fail")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
