package hermitio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talostrading/hermitio/hermiterrors"
	"github.com/talostrading/hermitio/hermitopts"
	"github.com/talostrading/hermitio/util"
)

func TestRunQuiescentStepsDriverOnce(t *testing.T) {
	d := &fakeDriver{delay: 5 * time.Second, hasDelay: true}
	rt, _ := newTestRuntime(d)

	delay, ok := rt.RunNICThread()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, delay)
	assert.Equal(t, 1, d.Polls())

	delay, ok = rt.RunNICThread()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, delay)
	assert.Equal(t, 2, d.Polls())
}

func TestRunWithoutDriverDelay(t *testing.T) {
	d := &fakeDriver{}
	rt, _ := newTestRuntime(d)

	_, ok := rt.RunNICThread()
	assert.False(t, ok)
	assert.Equal(t, 1, d.Polls())
}

func TestRunRepeatsWhileDriverProgresses(t *testing.T) {
	d := &fakeDriver{
		woken:    []bool{true, true, false},
		delay:    time.Millisecond,
		hasDelay: true,
	}
	rt, _ := newTestRuntime(d)

	delay, ok := rt.RunNICThread()
	assert.True(t, ok)
	assert.Equal(t, time.Millisecond, delay)
	assert.Equal(t, 3, d.Polls())
}

func TestRunPanicsWithoutDriver(t *testing.T) {
	rt, _ := newTestRuntime(nil)

	assert.PanicsWithValue(t, hermiterrors.ErrNotInitialized, func() {
		rt.RunNICThread()
	})

	// the executor is usable once the driver is installed
	require.NoError(t, rt.InitDriver(&fakeDriver{}))
	rt.RunNICThread()
}

func TestRunPanicsWhenEnteredConcurrently(t *testing.T) {
	rt, _ := newTestRuntime(&fakeDriver{})

	rt.running.Store(true)
	assert.Panics(t, func() {
		rt.run()
	})
}

func TestInitDriverTwice(t *testing.T) {
	rt, _ := newTestRuntime(&fakeDriver{})
	assert.ErrorIs(t, rt.InitDriver(&fakeDriver{}), hermiterrors.ErrAlreadyInitialized)
}

func TestRunDrainsQueueBeforePolling(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	d := &fakeDriver{
		onPoll: func(int) { record("poll") },
	}
	rt, _ := newTestRuntime(d)

	Spawn(rt, FutureFunc[int](func(Waker) (int, bool) {
		record("task")
		return 0, true
	}))

	rt.RunNICThread()
	assert.Equal(t, []string{"task", "poll"}, order)
}

func TestRunExecutesTasksWokenByDriver(t *testing.T) {
	f := &pendingFuture{value: 3}
	d := &fakeDriver{
		onPoll: func(n int) {
			if n == 1 {
				f.complete()
			}
		},
	}
	rt, _ := newTestRuntime(d)

	task := Spawn(rt, Future[int](f))
	rt.RunNICThread()

	v, done := task.Result()
	require.True(t, done)
	assert.Equal(t, 3, v)
	assert.Equal(t, int32(2), f.polls.Load())
	assert.Equal(t, 0, rt.Pending())
}

func TestTasksReregisteringWakersComplete(t *testing.T) {
	const tasks = 16

	var (
		mu   sync.Mutex
		regs []*WakerRegistration
	)

	// every poll of the driver wakes whichever tasks registered since
	d := &fakeDriver{
		onPoll: func(int) {
			mu.Lock()
			woke := regs
			regs = nil
			mu.Unlock()

			for _, r := range woke {
				r.Wake()
			}
		},
	}
	rt, _ := newTestRuntime(d)

	handles := make([]*Task[int], tasks)
	for i := range handles {
		left := i
		reg := &WakerRegistration{}
		handles[i] = Spawn(rt, FutureFunc[int](func(w Waker) (int, bool) {
			if left == 0 {
				return i, true
			}
			left--

			reg.Register(w)
			mu.Lock()
			regs = append(regs, reg)
			mu.Unlock()
			return 0, false
		}))
	}

	for i := 0; i < tasks+1; i++ {
		rt.RunNICThread()
	}

	for i, h := range handles {
		v, done := h.Result()
		require.True(t, done, "task %d did not complete", i)
		assert.Equal(t, i, v)
	}
}

func TestTasksSpawnedByTasksRunInSamePass(t *testing.T) {
	rt, _ := newTestRuntime(&fakeDriver{})

	var inner *Task[string]
	outer := Spawn(rt, FutureFunc[bool](func(Waker) (bool, bool) {
		inner = Spawn(rt, Ready("inner"))
		return true, true
	}))

	rt.RunNICThread()

	_, done := outer.Result()
	require.True(t, done)
	v, done := inner.Result()
	require.True(t, done)
	assert.Equal(t, "inner", v)
}

func TestRunnableWokenWhileRunningIsPolledAgain(t *testing.T) {
	rt, _ := newTestRuntime(&fakeDriver{})

	polls := 0
	task := Spawn(rt, FutureFunc[int](func(w Waker) (int, bool) {
		polls++
		if polls == 1 {
			w.Wake()
			return 0, false
		}
		return polls, true
	}))

	rt.RunNICThread()

	v, done := task.Result()
	require.True(t, done)
	assert.Equal(t, 2, v)
}

func TestCompletedRunnableIgnoresWakes(t *testing.T) {
	rt, _ := newTestRuntime(&fakeDriver{})

	var waker Waker
	Spawn(rt, FutureFunc[int](func(w Waker) (int, bool) {
		waker = w
		return 1, true
	}))
	rt.RunNICThread()

	waker.Wake()
	assert.Equal(t, 0, rt.Pending())
	assert.True(t, waker.(*Runnable).Completed())
}

func TestTaskAwaitedByTask(t *testing.T) {
	f := &pendingFuture{value: 9}
	rt, _ := newTestRuntime(&fakeDriver{})

	inner := Spawn(rt, Future[int](f))
	outer := Spawn(rt, FutureFunc[int](func(w Waker) (int, bool) {
		v, ok := inner.Poll(w)
		return v * 2, ok
	}))

	rt.RunNICThread()
	_, done := outer.Result()
	require.False(t, done)

	f.complete()
	rt.RunNICThread()

	v, done := outer.Result()
	require.True(t, done)
	assert.Equal(t, 18, v)

	select {
	case <-inner.Done():
	default:
		t.Fatal("inner task should be done")
	}
}

func TestRunRecordsStats(t *testing.T) {
	stats := util.NewRuntimeStats()
	rt, _ := newTestRuntime(&fakeDriver{}, hermitopts.Stats(stats))

	rt.RunNICThread()
	rt.RunNICThread()

	assert.Equal(t, int64(2), stats.Runs().Count)
}
