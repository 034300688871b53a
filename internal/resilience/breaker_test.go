package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Fails: 3, Window: time.Second, Cooldown: 50 * time.Millisecond})
	failing := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), failing)
	}

	assert.Equal(t, StateOpen, b.State())
	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{Fails: 1, Window: time.Second, Cooldown: 10 * time.Millisecond})
	_ = b.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	err := b.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	b := NewBreaker(BreakerConfig{Fails: 2, Window: 10 * time.Millisecond, Cooldown: time.Second})
	_ = b.Execute(context.Background(), func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	_ = b.Execute(context.Background(), func() error { return errors.New("boom") })

	assert.Equal(t, StateClosed, b.State())
}
