package hermitio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talostrading/hermitio/hermiterrors"
	"github.com/talostrading/hermitio/hermitopts"
	"github.com/talostrading/hermitio/util"
)

func TestBlockOnReady(t *testing.T) {
	d := &fakeDriver{}
	rt, k := newTestRuntime(d)

	v, err := BlockOn(rt, Ready(42))
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	// the guard flushes the executor once on release
	assert.Equal(t, 1, d.Polls())
	assert.False(t, k.Polling())
	assert.True(t, k.InterruptsEnabled())
}

func TestBlockOnPendingThenReady(t *testing.T) {
	f := &pendingFuture{value: 5}
	d := &fakeDriver{
		onPoll: func(n int) {
			if n == 3 {
				f.complete()
			}
		},
	}
	rt, k := newTestRuntime(d)

	v, err := BlockOn(rt, Future[int](f))
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, int32(2), f.polls.Load())

	assert.Equal(t, []Tid{k.tid}, k.Wakeups())
	assert.Zero(t, k.blocks)
}

func TestBlockOnSpawnedTask(t *testing.T) {
	f := &pendingFuture{value: 11}
	d := &fakeDriver{
		onPoll: func(n int) {
			if n == 2 {
				f.complete()
			}
		},
	}
	rt, _ := newTestRuntime(d)

	task := Spawn(rt, Future[int](f))
	v, err := BlockOn[int](rt, task)
	require.NoError(t, err)
	assert.Equal(t, 11, v)
}

func TestBlockOnTimeout(t *testing.T) {
	rt, k := newTestRuntime(&fakeDriver{})

	start := time.Now()
	_, err := BlockOnTimeout(rt, Future[int](&pendingFuture{}), 10*time.Millisecond)
	assert.ErrorIs(t, err, hermiterrors.ErrTimedOut)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	assert.False(t, k.Polling())
	assert.True(t, k.InterruptsEnabled())

	// the executor is free again
	require.True(t, rt.exec.TryLock())
	rt.exec.Unlock()
}

func TestBlockOnTimeoutLeavesTasksRunning(t *testing.T) {
	f := &pendingFuture{value: 1}
	d := &fakeDriver{}
	rt, _ := newTestRuntime(d)

	task := Spawn(rt, Future[int](f))

	_, err := BlockOnTimeout(rt, Future[int](&pendingFuture{}), time.Millisecond)
	require.ErrorIs(t, err, hermiterrors.ErrTimedOut)

	f.complete()
	v, err := BlockOn[int](rt, task)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestBlockOnReadyAtDeadline(t *testing.T) {
	const timeout = time.Second

	clock := newFakeClock()
	start := clock.Now()

	f := &pendingFuture{value: 8}
	d := &fakeDriver{
		onPoll: func(n int) {
			if n == 1 {
				// ready exactly when the deadline is reached
				clock.Set(start.Add(timeout))
				f.complete()
			}
		},
	}
	rt, _ := newTestRuntime(d, hermitopts.Clock(clock.Now))

	v, err := BlockOnTimeout(rt, Future[int](f), timeout)
	require.NoError(t, err)
	assert.Equal(t, 8, v)
}

func TestBlockOnTimesOutAtDeadline(t *testing.T) {
	const timeout = time.Second

	clock := newFakeClock()
	start := clock.Now()

	d := &fakeDriver{
		onPoll: func(int) {
			clock.Set(start.Add(timeout))
		},
	}
	rt, _ := newTestRuntime(d, hermitopts.Clock(clock.Now))

	_, err := BlockOnTimeout(rt, Future[int](&pendingFuture{}), timeout)
	assert.ErrorIs(t, err, hermiterrors.ErrTimedOut)
}

func TestBlockOnParksWithoutDriverDelay(t *testing.T) {
	f := &pendingFuture{value: 4}
	d := &fakeDriver{}
	stats := util.NewRuntimeStats()
	rt, k := newTestRuntime(d, hermitopts.SpinThreshold(0), hermitopts.Stats(stats))

	k.onBlock = f.complete

	v, err := BlockOn(rt, Future[int](f))
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	assert.Equal(t, 1, k.blocks)
	assert.Empty(t, k.timedBlocks)
	assert.Equal(t, 1, k.yields)
	assert.Equal(t, 1, k.parks)
	assert.Zero(t, k.parksHoldingRun)
	assert.Equal(t, []Tid{k.tid}, k.Wakeups())
	assert.Equal(t, int64(1), stats.Parks().Count)
	assert.False(t, k.Polling())
}

func TestBlockOnParksForLongDriverDelay(t *testing.T) {
	f := &pendingFuture{value: 4}
	d := &fakeDriver{delay: 5 * time.Second, hasDelay: true}
	rt, k := newTestRuntime(d, hermitopts.SpinThreshold(0))

	k.onBlock = f.complete

	_, err := BlockOn(rt, Future[int](f))
	require.NoError(t, err)

	assert.Zero(t, k.blocks)
	assert.Equal(t, []uint64{5000}, k.timedBlocks)
	assert.Equal(t, 1, k.parks)
	assert.Zero(t, k.parksHoldingRun)
}

func TestBlockOnReleasesExecutorWhileParked(t *testing.T) {
	f := &pendingFuture{value: 6}
	d := &fakeDriver{}
	rt, k := newTestRuntime(d, hermitopts.SpinThreshold(0))

	// another thread runs the executor while this one is parked, and a task
	// it runs completes the blocked future
	k.onBlock = func() {
		Spawn(rt, FutureFunc[bool](func(Waker) (bool, bool) {
			f.complete()
			return true, true
		}))

		ran := make(chan struct{})
		go func() {
			rt.RunExecutor()
			close(ran)
		}()

		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Error("executor was held by the parked thread")
			f.complete()
		}
	}

	v, err := BlockOn(rt, Future[int](f))
	require.NoError(t, err)
	assert.Equal(t, 6, v)
	assert.Equal(t, 1, k.parks)
	assert.Zero(t, k.parksHoldingRun)
}

func TestBlockOnSpinsForShortDriverDelay(t *testing.T) {
	f := &pendingFuture{value: 4}
	d := &fakeDriver{
		// at the threshold, not above it
		delay:    time.Second + 500*time.Microsecond,
		hasDelay: true,
		onPoll: func(n int) {
			if n == 50 {
				f.complete()
			}
		},
	}
	rt, k := newTestRuntime(d, hermitopts.SpinThreshold(0))

	_, err := BlockOn(rt, Future[int](f))
	require.NoError(t, err)

	assert.Zero(t, k.blocks)
	assert.Empty(t, k.timedBlocks)
	assert.Zero(t, k.yields)
}

func TestBlockOnSpinsBeforeThreshold(t *testing.T) {
	f := &pendingFuture{value: 4}
	d := &fakeDriver{
		onPoll: func(n int) {
			if n == 50 {
				f.complete()
			}
		},
	}
	rt, k := newTestRuntime(d, hermitopts.SpinThreshold(time.Hour))

	_, err := BlockOn(rt, Future[int](f))
	require.NoError(t, err)
	assert.Zero(t, k.blocks)
}

func TestBlockOnReusesThreadNotify(t *testing.T) {
	rt, k := newTestRuntime(&fakeDriver{})

	_, err := BlockOn(rt, Ready(1))
	require.NoError(t, err)
	first := rt.currentThreadNotify()

	_, err = BlockOn(rt, Ready(2))
	require.NoError(t, err)
	assert.Same(t, first, rt.currentThreadNotify())
	assert.Equal(t, k.tid, first.Tid())

	rt.ForgetThread(k.tid)
	assert.Equal(t, []Tid{k.tid}, k.forgotten)
	assert.NotSame(t, first, rt.currentThreadNotify())
}
