package hermitio

import "time"

// Tid identifies a kernel thread.
type Tid = uint32

// Waker lets a suspended operation be scheduled again.
type Waker interface {
	Wake()
}

type WakerFunc func()

func (f WakerFunc) Wake() { f() }

// Future is a computation polled to completion by the executor.
//
// Poll returns the value and true once the future is complete. When it returns
// false the future must have registered w with whatever will eventually make
// progress possible; a future that returns false without doing so is never
// polled again.
type Future[T any] interface {
	Poll(w Waker) (T, bool)
}

type FutureFunc[T any] func(w Waker) (T, bool)

func (f FutureFunc[T]) Poll(w Waker) (T, bool) { return f(w) }

type readyFuture[T any] struct {
	v T
}

func (f readyFuture[T]) Poll(_ Waker) (T, bool) { return f.v, true }

// Ready returns a future which completes immediately with v.
func Ready[T any](v T) Future[T] {
	return readyFuture[T]{v: v}
}

// Result is the outcome of a fallible I/O future.
type Result[T any] struct {
	Value T
	Err   error
}

// Kernel is the set of host thread primitives the executor relies on. Calls
// are infallible; an implementation which cannot honour one must panic.
type Kernel interface {
	// ThreadID returns a stable identifier of the calling kernel thread.
	ThreadID() Tid

	// Yield gives up the remainder of the scheduling quantum. After a Block
	// or BlockWithTimeout it is the call which suspends the thread.
	Yield()

	// Wakeup asks the kernel to reschedule tid if it is blocked. A wakeup
	// issued before the thread blocks must not be lost.
	Wakeup(tid Tid)

	// SetPollingMode hints the scheduler to not deschedule the calling thread
	// while polling is true.
	SetPollingMode(polling bool)

	// BlockWithTimeout marks the calling thread as blocked until it is woken
	// or ms milliseconds elapse. The thread keeps running until its next
	// Yield.
	BlockWithTimeout(ms uint64)

	// Block marks the calling thread as blocked until it is woken.
	Block()

	// DisableInterrupts disables interrupt delivery and returns whether they
	// were enabled before the call.
	DisableInterrupts() bool

	EnableInterrupts()
}

// Driver is the polled network interface stepped by the executor. All calls
// happen with the driver lock held.
type Driver interface {
	// Poll advances the interface and its sockets to now.
	Poll(now time.Time)

	// WasWoken reports whether the last Poll, or the tasks it woke, left
	// work which requires another Poll.
	WasWoken() bool

	// PollDelay returns the longest time the interface may go without a
	// Poll, or false if it has no timer pending.
	PollDelay(now time.Time) (time.Duration, bool)
}

// Waiter is implemented by drivers able to block until they have something to
// do. Wait is called without the driver lock held.
type Waiter interface {
	Wait(timeout time.Duration) error

	// Notify makes a Wait in progress return. It may be called from any
	// goroutine.
	Notify()
}

// threadForgetter is implemented by kernels keeping per-thread state.
type threadForgetter interface {
	Forget(tid Tid)
}
