package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConcurrencyLimit(t *testing.T) {
	pool := New(2, nil)

	var current int32
	var max int32

	work := func() {
		val := atomic.AddInt32(&current, 1)
		for {
			prev := atomic.LoadInt32(&max)
			if val <= prev {
				break
			}
			if atomic.CompareAndSwapInt32(&max, prev, val) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&current, -1)
	}

	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(work))
	}

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.LessOrEqual(t, atomic.LoadInt32(&max), int32(2))
	assert.Equal(t, 2, pool.Size())
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	pool := New(1, nil)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(func() {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		}))
	}
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.EqualValues(t, 5, ran.Load())
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	pool := New(1, nil)
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
	assert.ErrorIs(t, pool.SubmitWaitContext(context.Background(), func() error { return nil }), ErrPoolClosed)
}

func TestPoolSubmitAfterStopNow(t *testing.T) {
	pool := New(1, nil)
	pool.StopNow()
	pool.StopNow()
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
}

func TestPoolSubmitWaitContextReturnsTaskError(t *testing.T) {
	pool := New(1, nil)
	defer pool.Shutdown(context.Background())

	want := errors.New("boom")
	assert.ErrorIs(t, pool.SubmitWaitContext(context.Background(), func() error { return want }), want)
	assert.NoError(t, pool.SubmitWaitContext(context.Background(), nil))
}

func TestPoolSubmitWaitContextTimeout(t *testing.T) {
	pool := New(1, nil)
	defer pool.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.SubmitWaitContext(ctx, func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolSurvivesPanics(t *testing.T) {
	pool := New(1, nil)
	defer pool.Shutdown(context.Background())

	err := pool.SubmitWaitContext(context.Background(), func() error { panic("bad task") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad task")

	require.NoError(t, pool.Submit(func() { panic("again") }))
	assert.NoError(t, pool.SubmitWaitContext(context.Background(), func() error { return nil }))
}
