package uiloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(Config{FrameInterval: time.Millisecond})
	l.Start()
	t.Cleanup(l.Stop)
	return l
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	l := newTestLoop(t)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.GreaterOrEqual(t, l.Executed(), int64(50))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_PostFromLoopDoesNotDeadlock(t *testing.T) {
	l := newTestLoop(t)

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestLoop_DoWaits(t *testing.T) {
	l := newTestLoop(t)

	value := 0
	err := l.Do(context.Background(), func() { value = 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestLoop_DoHonorsContext(t *testing.T) {
	l := newTestLoop(t)

	block := make(chan struct{})
	l.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoop_StoppedRejectsWork(t *testing.T) {
	l := New(DefaultConfig())
	l.Start()
	l.Stop()

	assert.False(t, l.Running())
	assert.False(t, l.Post(func() {}))
	assert.False(t, l.Schedule(0, time.Millisecond, nil, nil))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrStopped)
}

func TestLoop_StopWithoutStart(t *testing.T) {
	l := New(DefaultConfig())
	l.Stop()
	assert.False(t, l.Running())
}

func TestLoop_RecoversPanics(t *testing.T) {
	l := newTestLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestSchedule_StepsThenCompletes(t *testing.T) {
	l := newTestLoop(t)

	var mu sync.Mutex
	var steps []float64
	completed := make(chan struct{})

	start := time.Now()
	ok := l.Schedule(5*time.Millisecond, 20*time.Millisecond, func(p float64) {
		mu.Lock()
		steps = append(steps, p)
		mu.Unlock()
	}, func() { close(completed) })
	require.True(t, ok)

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule never completed")
	}
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, steps)
	assert.Equal(t, 1.0, steps[len(steps)-1])
	for i := 1; i < len(steps); i++ {
		assert.GreaterOrEqual(t, steps[i], steps[i-1], "progress must not go backwards")
	}
}

func TestAfter_RunsOnLoop(t *testing.T) {
	l := newTestLoop(t)

	fired := make(chan struct{})
	l.After(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("After never fired")
	}
}

func TestSchedule_StopAbandonsTimers(t *testing.T) {
	l := New(Config{FrameInterval: time.Millisecond})
	l.Start()

	completed := false
	l.Schedule(time.Hour, time.Hour, nil, func() { completed = true })
	l.Stop()

	assert.False(t, completed)
}

func TestLerp(t *testing.T) {
	assert.Equal(t, 0.0, Lerp(0, 1, -1))
	assert.Equal(t, 1.0, Lerp(0, 1, 2))
	assert.InDelta(t, 1.05, Lerp(1.1, 1.0, 0.5), 1e-9)
}
