package hermitio

import (
	"runtime"
	"time"

	"github.com/talostrading/hermitio/hermiterrors"
)

// BlockOn drives f to completion on the calling kernel thread, running the
// executor while f is pending.
func BlockOn[T any](rt *Runtime, f Future[T]) (T, error) {
	return blockOn(rt, f, 0, false)
}

// BlockOnTimeout is BlockOn giving up with hermiterrors.ErrTimedOut once
// timeout has elapsed since the call with f still pending. The executor and
// every other task are unaffected by the timeout.
func BlockOnTimeout[T any](rt *Runtime, f Future[T], timeout time.Duration) (T, error) {
	return blockOn(rt, f, timeout, true)
}

// blockOn polls f with the thread's ThreadNotify as waker. While f is pending
// it spins on the executor, and parks the thread only once it has been
// pending for the spin threshold and the driver does not need a Poll within
// the park delay threshold. The kernel calls Yield, Block and
// BlockWithTimeout are the only points where the thread is suspended; the
// thread actually parks in the Yield of YieldNow, with the executor released
// so that other threads can run it meanwhile.
func blockOn[T any](rt *Runtime, f Future[T], timeout time.Duration, hasTimeout bool) (T, error) {
	// The notifier is keyed by the kernel thread id, which must not change
	// under us.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	notify := rt.currentThreadNotify()
	start := rt.now()

	polling := rt.NewPollingGuard()
	defer polling.Release()

	for {
		notify.Reset()

		if v, ok := f.Poll(notify); ok {
			rt.log.Trace().Uint32("tid", notify.tid).Msg("blocking future is ready")
			return v, nil
		}

		pendingStart := rt.now()
		polling.Run()

		for !notify.WasWoken() {
			now := rt.now()

			if hasTimeout && !now.Before(start.Add(timeout)) {
				var zero T
				return zero, hermiterrors.ErrTimedOut
			}

			rt.log.Trace().Msg("checking network delay")
			delay, hasDelay := polling.Run()
			rt.log.Trace().Bool("has_delay", hasDelay).Dur("delay", delay).Msg("network delay")

			if now.Sub(pendingStart) >= rt.spinThreshold &&
				!notify.WasWoken() &&
				(!hasDelay || delay.Milliseconds() > rt.parkDelayThreshold.Milliseconds()) {
				if !notify.WasUnparked() {
					rt.log.Debug().Uint32("tid", notify.tid).Msg("blocking task")

					parkStart := time.Now()
					if hasDelay {
						rt.kernel.BlockWithTimeout(uint64(delay.Milliseconds()))
					} else {
						rt.kernel.Block()
					}

					notify.ResetUnparked()
					polling.YieldNow()
					if rt.stats != nil {
						rt.stats.RecordPark(time.Since(parkStart))
					}
					polling.Run()
				}
			}
		}

		rt.log.Trace().Uint32("tid", notify.tid).Msg("thread notify was woken")
	}
}
