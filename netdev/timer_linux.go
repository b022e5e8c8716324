//go:build linux

package netdev

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/talostrading/hermitio"
	"github.com/talostrading/hermitio/internal"
)

// Timer is a one-shot timer whose expiry is delivered by the NIC's Poll. While
// armed, it bounds the NIC's PollDelay.
type Timer struct {
	nic      *NIC
	it       *internal.Timer
	deadline time.Time // guarded by nic.mu while armed
	fired    atomic.Bool
	closed   atomic.Bool
	waker    hermitio.WakerRegistration
}

func (n *NIC) NewTimer() (*Timer, error) {
	it, err := internal.NewTimer()
	if err != nil {
		return nil, err
	}

	t := &Timer{
		nic: n,
		it:  it,
	}
	if err := n.poller.Add(it.Fd(), t.onEvent); err != nil {
		it.Close()
		return nil, err
	}
	return t, nil
}

func (t *Timer) onEvent(_ internal.PollFlags) {
	if !t.it.Expired() {
		return
	}
	t.nic.disarmTimer(t)
	t.fired.Store(true)
	t.waker.Wake()
}

// Arm makes the timer fire once after dur, replacing any previous arming.
func (t *Timer) Arm(dur time.Duration) error {
	if t.closed.Load() {
		return io.EOF
	}

	t.fired.Store(false)

	t.nic.mu.Lock()
	t.deadline = time.Now().Add(dur)
	t.nic.mu.Unlock()

	t.nic.armTimer(t)
	if err := t.it.Arm(dur); err != nil {
		t.nic.disarmTimer(t)
		return err
	}
	return nil
}

func (t *Timer) Disarm() error {
	t.nic.disarmTimer(t)
	return t.it.Disarm()
}

// Register sets the waker woken when the timer fires or is closed.
func (t *Timer) Register(w hermitio.Waker) {
	t.waker.Register(w)
}

func (t *Timer) Fired() bool {
	return t.fired.Load()
}

func (t *Timer) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return io.EOF
	}

	t.nic.disarmTimer(t)
	err := t.nic.poller.Del(t.it.Fd())
	if cerr := t.it.Close(); err == nil {
		err = cerr
	}
	t.waker.Wake()
	return err
}

type sleepFuture struct {
	nic   *NIC
	dur   time.Duration
	timer *Timer
	err   error
	done  bool
}

// Sleep returns a future which completes once dur has elapsed since its first
// poll. The result is non-nil if the timer could not be set up.
func (n *NIC) Sleep(dur time.Duration) hermitio.Future[error] {
	return &sleepFuture{
		nic: n,
		dur: dur,
	}
}

func (f *sleepFuture) Poll(w hermitio.Waker) (error, bool) {
	if f.done {
		return f.err, true
	}

	if f.timer == nil {
		t, err := f.nic.NewTimer()
		if err != nil {
			return f.finish(err)
		}
		f.timer = t
		t.Register(w)
		if err := t.Arm(f.dur); err != nil {
			return f.finish(err)
		}
	} else {
		f.timer.Register(w)
	}

	if f.timer.Fired() {
		return f.finish(nil)
	}
	return nil, false
}

func (f *sleepFuture) finish(err error) (error, bool) {
	f.done = true
	f.err = err
	if f.timer != nil {
		f.timer.Close()
	}
	return err, true
}
