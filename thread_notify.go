package hermitio

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ThreadNotify is the Waker of a kernel thread blocked in BlockOn.
type ThreadNotify struct {
	kernel Kernel
	log    *zerolog.Logger

	// tid is the thread woken by Wake.
	tid Tid

	// unparked makes sure a wakeup is not forgotten before the next block,
	// and that only one kernel wakeup is issued per block.
	unparked atomic.Bool

	// woken is set once a wakeup occurred.
	woken atomic.Bool
}

func NewThreadNotify(kernel Kernel, tid Tid) *ThreadNotify {
	nop := zerolog.Nop()
	return &ThreadNotify{
		kernel: kernel,
		log:    &nop,
		tid:    tid,
	}
}

func (n *ThreadNotify) Tid() Tid {
	return n.tid
}

func (n *ThreadNotify) WasWoken() bool {
	return n.woken.Load()
}

func (n *ThreadNotify) WasUnparked() bool {
	return n.unparked.Load()
}

func (n *ThreadNotify) ResetUnparked() {
	n.unparked.Store(false)
}

func (n *ThreadNotify) Reset() {
	n.woken.Store(false)
	n.unparked.Store(false)
}

func (n *ThreadNotify) Wake() {
	n.log.Debug().Uint32("tid", n.tid).Msg("waking thread notify")

	n.woken.Store(true)
	if !n.unparked.Swap(true) {
		n.kernel.Wakeup(n.tid)
	}
}

// currentThreadNotify returns the notifier of the calling kernel thread,
// creating it on first use.
func (rt *Runtime) currentThreadNotify() *ThreadNotify {
	tid := rt.kernel.ThreadID()
	if n, ok := rt.notifies.Load(tid); ok {
		return n.(*ThreadNotify)
	}

	n := NewThreadNotify(rt.kernel, tid)
	n.log = &rt.log
	actual, _ := rt.notifies.LoadOrStore(tid, n)
	return actual.(*ThreadNotify)
}

// ForgetThread drops the notifier of a kernel thread which exited, along with
// the kernel's state for it. Notifiers are otherwise kept for every thread
// which ever called BlockOn; the Go runtime keeps that set bounded by reusing
// its OS threads, so only programs ending locked goroutines need this.
func (rt *Runtime) ForgetThread(tid Tid) {
	rt.notifies.Delete(tid)
	if k, ok := rt.kernel.(threadForgetter); ok {
		k.Forget(tid)
	}
}
