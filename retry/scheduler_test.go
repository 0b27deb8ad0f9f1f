package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		InitialInterval:     time.Second,
		MaxInterval:         4 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0,
		MaxElapsedTime:      10 * time.Second,
	}
}

func TestScheduleDeduplicatesByKey(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock, testPolicy())

	noop := func(ctx context.Context) error { return nil }
	assert.True(t, s.Schedule("approve/0x01", noop))
	assert.False(t, s.Schedule("approve/0x01", noop))
	assert.True(t, s.Schedule("approve/0x02", noop))
	assert.Equal(t, 2, s.Pending())
	assert.True(t, s.Has("approve/0x01"))

	s.Cancel("approve/0x02")
	assert.Equal(t, 1, s.Pending())
}

func TestRunDueWaitsForBackoff(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock, testPolicy())
	ctx := context.Background()

	runs := 0
	s.Schedule("k", func(ctx context.Context) error {
		runs++
		return nil
	})

	assert.Equal(t, 0, s.RunDue(ctx))
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 0, s.RunDue(ctx))
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, s.RunDue(ctx))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 0, s.Pending())
}

func TestFailingTaskGivesUp(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock, testPolicy())
	ctx := context.Background()

	var gaveUp string
	s.OnGiveUp = func(key string, err error) { gaveUp = key }

	runs := 0
	s.Schedule("k", func(ctx context.Context) error {
		runs++
		return errors.New("node unavailable")
	})

	// due at 1s, 3s and 7s; the next interval would pass the 10s budget
	for _, step := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		clock.Advance(step)
		require.Equal(t, 1, s.RunDue(ctx))
	}
	assert.Equal(t, 3, runs)
	assert.Equal(t, "k", gaveUp)
	assert.Equal(t, 0, s.Pending())
}

func TestPermanentErrorDropsTask(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock, testPolicy())

	s.Schedule("k", func(ctx context.Context) error {
		return Permanent(errors.New("rejected"))
	})
	clock.Advance(time.Second)
	s.RunDue(context.Background())
	assert.Equal(t, 0, s.Pending())
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
	assert.False(t, IsPermanent(errors.New("x")))
}

func TestTaskSucceedsAfterRetry(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock, testPolicy())
	ctx := context.Background()

	runs := 0
	s.Schedule("k", func(ctx context.Context) error {
		runs++
		if runs < 2 {
			return errors.New("timeout")
		}
		return nil
	})
	clock.Advance(time.Second)
	s.RunDue(ctx)
	assert.Equal(t, 1, s.Pending())
	clock.Advance(time.Second)
	assert.Equal(t, 0, s.RunDue(ctx))
	clock.Advance(time.Second)
	assert.Equal(t, 1, s.RunDue(ctx))
	assert.Equal(t, 0, s.Pending())
}

func TestManualClockAfter(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	ch := clock.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}
	clock.Advance(time.Minute)
	select {
	case at := <-ch:
		assert.Equal(t, time.Unix(60, 0), at)
	default:
		t.Fatal("timer did not fire")
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	s := NewScheduler(SystemClock{}, testPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Loop(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPerTaskGiveUp(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	p := testPolicy()
	p.MaxElapsedTime = time.Second
	s := NewScheduler(clock, p)

	var got error
	s.ScheduleWithGiveUp("k", func(ctx context.Context) error {
		return errors.New("still down")
	}, func(err error) { got = err })

	clock.Advance(time.Second)
	s.RunDue(context.Background())
	assert.EqualError(t, got, "still down")
	assert.Equal(t, 0, s.Pending())
}
