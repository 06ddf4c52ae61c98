package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T, clock clockwork.Clock) *Breaker {
	t.Helper()
	b, err := New(Config{
		FailThreshold: 3,
		OpenDuration:  10 * time.Second,
		HalfOpenMax:   1,
		Clock:         clock,
	})
	require.NoError(t, err)
	return b
}

func TestClosedAllowsUntilThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)

	for i := 0; i < 2; i++ {
		gen, err := b.Allow()
		require.NoError(t, err)
		b.RecordResult(gen, errors.New("boom"))
		assert.Equal(t, Closed, b.State())
	}

	gen, err := b.Allow()
	require.NoError(t, err)
	b.RecordResult(gen, errors.New("boom"))
	assert.Equal(t, Open, b.State())
}

func TestOpenRejectsUntilExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)

	for i := 0; i < 3; i++ {
		gen, _ := b.Allow()
		b.RecordResult(gen, errors.New("boom"))
	}
	require.Equal(t, Open, b.State())

	_, err := b.Allow()
	assert.ErrorIs(t, err, ErrOpen)

	clock.Advance(11 * time.Second)
	assert.Equal(t, HalfOpen, b.State())
}

func TestHalfOpenClosesOnSuccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)
	for i := 0; i < 3; i++ {
		gen, _ := b.Allow()
		b.RecordResult(gen, errors.New("boom"))
	}
	clock.Advance(11 * time.Second)
	require.Equal(t, HalfOpen, b.State())

	gen, err := b.Allow()
	require.NoError(t, err)
	b.RecordResult(gen, nil)
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)
	for i := 0; i < 3; i++ {
		gen, _ := b.Allow()
		b.RecordResult(gen, errors.New("boom"))
	}
	clock.Advance(11 * time.Second)
	require.Equal(t, HalfOpen, b.State())

	gen, err := b.Allow()
	require.NoError(t, err)
	b.RecordResult(gen, errors.New("still failing"))
	assert.Equal(t, Open, b.State())
}

func TestHalfOpenLimitsConcurrentProbes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)
	for i := 0; i < 3; i++ {
		gen, _ := b.Allow()
		b.RecordResult(gen, errors.New("boom"))
	}
	clock.Advance(11 * time.Second)
	require.Equal(t, HalfOpen, b.State())

	_, err := b.Allow()
	require.NoError(t, err)

	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrOpen)
}

func TestStaleGenerationResultIgnored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)

	staleGen, err := b.Allow()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		gen, _ := b.Allow()
		b.RecordResult(gen, errors.New("boom"))
	}
	require.Equal(t, Open, b.State())

	b.RecordResult(staleGen, nil)
	assert.Equal(t, Open, b.State(), "a success from a pre-trip generation must not close the breaker")
}
