package hermitio

import (
	"sync"
	"sync/atomic"
)

const (
	stateIdle uint32 = iota
	stateScheduled
	stateRunning
	stateNotified // woken while running
	stateCompleted
)

// Runnable is a spawned future as seen by the executor. It is owned by the
// Queue while scheduled and is its own Waker: waking it schedules it again.
type Runnable struct {
	queue *Queue
	state atomic.Uint32
	poll  func(w Waker) bool
}

// Schedule pushes the runnable onto its queue unless it already is there, is
// running, or has completed.
func (r *Runnable) Schedule() {
	for {
		switch r.state.Load() {
		case stateIdle:
			if r.state.CompareAndSwap(stateIdle, stateScheduled) {
				r.queue.Push(r)
				return
			}
		case stateRunning:
			if r.state.CompareAndSwap(stateRunning, stateNotified) {
				return
			}
		default:
			return
		}
	}
}

func (r *Runnable) Wake() {
	r.Schedule()
}

// Run polls the future once.
func (r *Runnable) Run() {
	if !r.state.CompareAndSwap(stateScheduled, stateRunning) {
		return
	}

	if r.poll(r) {
		r.state.Store(stateCompleted)
		return
	}

	if !r.state.CompareAndSwap(stateRunning, stateIdle) {
		r.state.Store(stateScheduled)
		r.queue.Push(r)
	}
}

func (r *Runnable) Completed() bool {
	return r.state.Load() == stateCompleted
}

// Task is the caller's handle on a spawned future. A Task is a Future itself,
// so it can be awaited from another future or passed to BlockOn.
//
// Dropping a Task does not cancel the future.
type Task[T any] struct {
	mu       sync.Mutex
	finished bool
	value    T
	done     chan struct{}
	waiter   WakerRegistration
}

func (t *Task[T]) complete(v T) {
	t.mu.Lock()
	t.value = v
	t.finished = true
	close(t.done)
	t.mu.Unlock()

	t.waiter.Wake()
}

func (t *Task[T]) Poll(w Waker) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return t.value, true
	}
	t.waiter.Register(w)

	var zero T
	return zero, false
}

// Done is closed once the future has completed.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

func (t *Task[T]) Result() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.finished
}

// Spawn schedules f on rt's executor and returns a handle to its result.
//
// The future is polled by whichever goroutine runs the executor next. A
// future that returns pending without registering its waker, and is never
// polled again, is leaked together with its Task. This is accepted: there is
// no garbage collection of stuck tasks.
func Spawn[T any](rt *Runtime, f Future[T]) *Task[T] {
	t := &Task[T]{
		done: make(chan struct{}),
	}
	r := &Runnable{
		queue: rt.queue,
		poll: func(w Waker) bool {
			v, ok := f.Poll(w)
			if ok {
				t.complete(v)
			}
			return ok
		},
	}
	r.Schedule()
	return t
}
