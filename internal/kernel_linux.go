//go:build linux

package internal

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// HostKernel provides the executor's kernel primitives on top of Linux OS
// threads. A kernel thread is the OS thread a goroutine is locked to, so
// callers of ThreadID, SetPollingMode, Block* and Yield must have called
// runtime.LockOSThread.
//
// As on the unikernel, blocking is two steps: Block* records the request and
// the following Yield suspends the thread.
type HostKernel struct {
	// threads maps a tid to its *hostThread.
	threads sync.Map

	interrupts atomic.Bool
}

type hostThread struct {
	// park holds at most one wakeup token. Wakeup deposits it, the Yield
	// following a Block* consumes it, so a wakeup issued before the thread
	// suspends is not lost.
	park    chan struct{}
	polling atomic.Bool

	// Set by Block* and consumed by the next Yield. Only the owning thread
	// touches them.
	blocked     bool
	hasDeadline bool
	deadline    time.Time
}

func NewHostKernel() *HostKernel {
	k := &HostKernel{}
	k.interrupts.Store(true)
	return k
}

func (k *HostKernel) thread(tid uint32) *hostThread {
	if t, ok := k.threads.Load(tid); ok {
		return t.(*hostThread)
	}
	t, _ := k.threads.LoadOrStore(tid, &hostThread{
		park: make(chan struct{}, 1),
	})
	return t.(*hostThread)
}

func (k *HostKernel) ThreadID() uint32 {
	return uint32(unix.Gettid())
}

// Yield gives up the processor. If the thread asked to block since its last
// Yield, this is where it is suspended, until woken or the timeout given to
// BlockWithTimeout elapses.
func (k *HostKernel) Yield() {
	t := k.thread(k.ThreadID())
	if !t.blocked {
		runtime.Gosched()
		return
	}
	t.blocked = false

	if !t.hasDeadline {
		<-t.park
		return
	}

	d := time.Until(t.deadline)
	if d <= 0 {
		select {
		case <-t.park:
		default:
		}
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.park:
	case <-timer.C:
	}
}

func (k *HostKernel) Wakeup(tid uint32) {
	select {
	case k.thread(tid).park <- struct{}{}:
	default:
	}
}

func (k *HostKernel) SetPollingMode(polling bool) {
	k.thread(k.ThreadID()).polling.Store(polling)
}

// PollingMode reports the polling mode last set by tid.
func (k *HostKernel) PollingMode(tid uint32) bool {
	return k.thread(tid).polling.Load()
}

// BlockWithTimeout marks the calling thread as blocked for at most ms
// milliseconds. It returns right away: the thread is suspended by its next
// Yield, which the caller issues once it released whatever it must not hold
// while parked.
func (k *HostKernel) BlockWithTimeout(ms uint64) {
	t := k.thread(k.ThreadID())
	t.blocked = true
	t.hasDeadline = true
	t.deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
}

// Block is BlockWithTimeout without a timeout.
func (k *HostKernel) Block() {
	t := k.thread(k.ThreadID())
	t.blocked = true
	t.hasDeadline = false
}

func (k *HostKernel) DisableInterrupts() bool {
	return k.interrupts.Swap(false)
}

func (k *HostKernel) EnableInterrupts() {
	k.interrupts.Store(true)
}

func (k *HostKernel) InterruptsEnabled() bool {
	return k.interrupts.Load()
}

// Forget drops the state of a thread which exited. Without it the thread
// table holds one entry per OS thread that ever used the kernel, which the Go
// runtime keeps bounded by reusing its threads.
func (k *HostKernel) Forget(tid uint32) {
	k.threads.Delete(tid)
}
