package hermitio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/talostrading/hermitio/hermitopts"
)

// fakeKernel records every primitive the executor issues.
type fakeKernel struct {
	mu sync.Mutex

	tid         Tid
	wakeups     []Tid
	yields      int
	blocks      int
	timedBlocks []uint64
	polling     bool
	irqEnabled  bool

	// blocked is set by Block* and turns the next Yield into a park.
	blocked bool
	parks   int

	// rt, if set, is checked for its executor lock at every park.
	rt              *Runtime
	parksHoldingRun int

	forgotten []Tid

	// onBlock runs in place of the thread being parked.
	onBlock func()
}

var _ Kernel = &fakeKernel{}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		tid:        1,
		irqEnabled: true,
	}
}

func (k *fakeKernel) ThreadID() Tid {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tid
}

func (k *fakeKernel) Yield() {
	k.mu.Lock()
	k.yields++
	park := k.blocked
	k.blocked = false
	rt := k.rt
	onBlock := k.onBlock
	k.mu.Unlock()

	if !park {
		return
	}

	held := false
	if rt != nil {
		if rt.exec.TryLock() {
			rt.exec.Unlock()
		} else {
			held = true
		}
	}

	k.mu.Lock()
	k.parks++
	if held {
		k.parksHoldingRun++
	}
	k.mu.Unlock()

	if onBlock != nil {
		onBlock()
	}
}

func (k *fakeKernel) Wakeup(tid Tid) {
	k.mu.Lock()
	k.wakeups = append(k.wakeups, tid)
	k.mu.Unlock()
}

func (k *fakeKernel) SetPollingMode(polling bool) {
	k.mu.Lock()
	k.polling = polling
	k.mu.Unlock()
}

func (k *fakeKernel) BlockWithTimeout(ms uint64) {
	k.mu.Lock()
	k.timedBlocks = append(k.timedBlocks, ms)
	k.blocked = true
	k.mu.Unlock()
}

func (k *fakeKernel) Block() {
	k.mu.Lock()
	k.blocks++
	k.blocked = true
	k.mu.Unlock()
}

func (k *fakeKernel) Forget(tid Tid) {
	k.mu.Lock()
	k.forgotten = append(k.forgotten, tid)
	k.mu.Unlock()
}

func (k *fakeKernel) DisableInterrupts() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	prev := k.irqEnabled
	k.irqEnabled = false
	return prev
}

func (k *fakeKernel) EnableInterrupts() {
	k.mu.Lock()
	k.irqEnabled = true
	k.mu.Unlock()
}

func (k *fakeKernel) Polling() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.polling
}

func (k *fakeKernel) InterruptsEnabled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.irqEnabled
}

func (k *fakeKernel) Wakeups() []Tid {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]Tid(nil), k.wakeups...)
}

// fakeDriver answers WasWoken from a script and reports a fixed delay.
type fakeDriver struct {
	mu sync.Mutex

	polls    int
	woken    []bool
	delay    time.Duration
	hasDelay bool

	// onPoll runs inside Poll with the number of the poll, starting at 1.
	onPoll func(n int)
}

var _ Driver = &fakeDriver{}

func (d *fakeDriver) Poll(_ time.Time) {
	d.mu.Lock()
	d.polls++
	n := d.polls
	onPoll := d.onPoll
	d.mu.Unlock()

	if onPoll != nil {
		onPoll(n)
	}
}

func (d *fakeDriver) WasWoken() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.woken) == 0 {
		return false
	}
	woken := d.woken[0]
	d.woken = d.woken[1:]
	return woken
}

func (d *fakeDriver) PollDelay(_ time.Time) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay, d.hasDelay
}

func (d *fakeDriver) Polls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// pendingFuture stays pending, registering its waker, until complete is called.
type pendingFuture struct {
	reg   WakerRegistration
	ready atomic.Bool
	polls atomic.Int32
	value int
}

func (f *pendingFuture) Poll(w Waker) (int, bool) {
	f.polls.Add(1)
	if f.ready.Load() {
		return f.value, true
	}
	f.reg.Register(w)
	return 0, false
}

func (f *pendingFuture) complete() {
	f.ready.Store(true)
	f.reg.Wake()
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestRuntime(d Driver, opts ...hermitopts.Option) (*Runtime, *fakeKernel) {
	k := newFakeKernel()
	rt := NewRuntime(k, opts...)
	k.rt = rt
	if d != nil {
		if err := rt.InitDriver(d); err != nil {
			panic(err)
		}
	}
	return rt, k
}
