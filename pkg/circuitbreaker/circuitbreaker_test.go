package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func newTestBreaker(clock *fakeClock, opts ...Option) *Breaker {
	opts = append([]Option{
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithCoolDown(10 * time.Second),
		WithClock(clock.now),
	}, opts...)
	return New("test", opts...)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)
	assert.Equal(t, 1, b.Counts().Rejected)
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, ok))
	_ = b.Execute(ctx, fail)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeClosesAfterCoolDown(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	var transitions []string
	b := newTestBreaker(clock, WithOnStateChange(func(_ string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	clock.advance(10 * time.Second)

	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	clock.advance(11 * time.Second)

	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen)
}

func TestBreaker_ProbeLimit(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	clock.advance(time.Minute)

	err := b.Execute(ctx, func(ctx context.Context) error {
		// второй вызов во время пробного запроса отклоняется
		assert.ErrorIs(t, b.Execute(ctx, ok), ErrProbeLimit)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	miss := errors.New("miss")
	b := newTestBreaker(clock, WithIsFailure(func(err error) bool { return !errors.Is(err, miss) }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return miss }), miss)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 5, b.Counts().Successes)

	b.Reset()
	assert.Equal(t, Counts{}, b.Counts())
}

func TestForCache(t *testing.T) {
	b := ForCache("report-cache", nil, nil)
	assert.Equal(t, "report-cache", b.Name())
	assert.Equal(t, 3, b.config.FailureThreshold)
	assert.Equal(t, 15*time.Second, b.config.CoolDown)
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
