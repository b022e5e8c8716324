package hermitio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/talostrading/hermitio/hermiterrors"
	"github.com/talostrading/hermitio/hermitopts"
	"github.com/talostrading/hermitio/util"
)

// Runtime owns the executor: its run loop, the queue of ready runnables, the
// network driver and the per-thread notifiers used by BlockOn.
//
// At most one goroutine runs the executor at any time. Which one does changes
// from pass to pass: a BlockOn caller, a PollingGuard holder, or the NIC
// service loop.
type Runtime struct {
	kernel Kernel
	queue  *Queue

	// exec serializes the run loop.
	exec    sync.Mutex
	running atomic.Bool

	nic nic

	// notifies maps a Tid to its *ThreadNotify.
	notifies sync.Map

	sockets *SocketMap

	spinThreshold      time.Duration
	parkDelayThreshold time.Duration
	serviceInterval    time.Duration
	pinCPU             int

	now   func() time.Time
	log   zerolog.Logger
	stats *util.RuntimeStats
}

type nic struct {
	mu     sync.Mutex
	driver Driver
}

func NewRuntime(kernel Kernel, opts ...hermitopts.Option) *Runtime {
	rt := &Runtime{
		kernel:             kernel,
		queue:              NewQueue(),
		sockets:            NewSocketMap(),
		spinThreshold:      hermitopts.DefaultSpinThreshold,
		parkDelayThreshold: hermitopts.DefaultParkDelayThreshold,
		serviceInterval:    hermitopts.DefaultServiceInterval,
		pinCPU:             -1,
		now:                time.Now,
		log:                zerolog.Nop(),
	}

	for _, opt := range opts {
		switch opt.Type() {
		case hermitopts.TypeSpinThreshold:
			rt.spinThreshold = opt.Value().(time.Duration)
		case hermitopts.TypeParkDelayThreshold:
			rt.parkDelayThreshold = opt.Value().(time.Duration)
		case hermitopts.TypeServiceInterval:
			rt.serviceInterval = opt.Value().(time.Duration)
		case hermitopts.TypePinCPU:
			rt.pinCPU = opt.Value().(int)
		case hermitopts.TypeLogger:
			rt.log = opt.Value().(zerolog.Logger)
		case hermitopts.TypeClock:
			rt.now = opt.Value().(func() time.Time)
		case hermitopts.TypeStats:
			rt.stats = opt.Value().(*util.RuntimeStats)
		}
	}

	return rt
}

// InitDriver installs the network driver. It can be done once; running the
// executor before it is a programming error and panics.
func (rt *Runtime) InitDriver(d Driver) error {
	rt.nic.mu.Lock()
	defer rt.nic.mu.Unlock()

	if rt.nic.driver != nil {
		return hermiterrors.ErrAlreadyInitialized
	}
	rt.nic.driver = d
	return nil
}

func (rt *Runtime) Kernel() Kernel {
	return rt.kernel
}

func (rt *Runtime) Sockets() *SocketMap {
	return rt.sockets
}

func (rt *Runtime) Logger() zerolog.Logger {
	return rt.log
}

// Pending returns the number of runnables waiting in the queue.
func (rt *Runtime) Pending() int {
	return rt.queue.Len()
}

// lockDriver acquires the driver lock. The caller must unlock rt.nic.mu.
func (rt *Runtime) lockDriver() Driver {
	rt.nic.mu.Lock()
	if rt.nic.driver == nil {
		rt.nic.mu.Unlock()
		panic(hermiterrors.ErrNotInitialized)
	}
	return rt.nic.driver
}

func (rt *Runtime) pollDriver(now time.Time) {
	d := rt.lockDriver()
	defer rt.nic.mu.Unlock()

	d.Poll(now)
}

// settleDriver reports whether the driver needs another Poll and, if it does
// not, its recommended delay.
func (rt *Runtime) settleDriver(now time.Time) (woken bool, delay time.Duration, ok bool) {
	d := rt.lockDriver()
	defer rt.nic.mu.Unlock()

	if d.WasWoken() {
		return true, 0, false
	}
	delay, ok = d.PollDelay(now)
	return false, delay, ok
}

// run is one pass of the executor. The caller must hold rt.exec.
//
// The queue is drained before the driver is polled so that every future
// depending on driver state has registered its waker first, and again after
// each Poll for the futures the driver woke. The driver lock is never held
// while a runnable runs.
func (rt *Runtime) run() (time.Duration, bool) {
	if !rt.running.CompareAndSwap(false, true) {
		panic("hermitio: executor run loop entered concurrently")
	}
	defer rt.running.Store(false)

	start := time.Now()
	now := rt.now()

	rt.executeAll()

	var (
		delay time.Duration
		ok    bool
	)
	for {
		rt.pollDriver(now)
		rt.executeAll()

		var woken bool
		woken, delay, ok = rt.settleDriver(now)
		if !woken {
			break
		}
	}

	rt.executeAll()

	if rt.stats != nil {
		rt.stats.RecordRun(time.Since(start))
	}

	return delay, ok
}

func (rt *Runtime) executeAll() {
	for {
		r, ok := rt.queue.Pop()
		if !ok {
			return
		}
		r.Run()
	}
}

// RunNICThread runs the executor once without touching the polling mode. It
// is the entry point of the dedicated driver service thread.
func (rt *Runtime) RunNICThread() (time.Duration, bool) {
	rt.exec.Lock()
	defer rt.exec.Unlock()

	return rt.run()
}

// RunExecutor runs the executor once inside a PollingGuard.
func (rt *Runtime) RunExecutor() (time.Duration, bool) {
	polling := rt.NewPollingGuard()
	defer polling.Release()

	return polling.Run()
}
