package hermitio

import (
	"context"
	"runtime"
	"time"

	"github.com/talostrading/hermitio/util"
)

// ServeNIC is the loop of the dedicated driver service thread. It keeps
// running the executor so that sockets make progress while no caller is in
// BlockOn or while they are parked, sleeping for the driver's recommended
// delay, capped by the service interval, between runs. Drivers implementing Waiter are asked
// to sleep themselves so that socket activity cuts the sleep short.
//
// While another thread runs the executor, ServeNIC only steps the driver.
//
// ServeNIC returns ctx.Err() once ctx is done.
func (rt *Runtime) ServeNIC(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if rt.pinCPU >= 0 {
		restore, err := util.PinThread(rt.pinCPU)
		if err != nil {
			return err
		}
		defer func() {
			if err := restore(); err != nil {
				rt.log.Warn().Err(err).Msg("could not restore nic thread affinity")
			}
		}()
	}

	rt.log.Info().Int("cpu", rt.pinCPU).Dur("interval", rt.serviceInterval).Msg("nic service loop started")
	defer rt.log.Info().Msg("nic service loop stopped")

	// a Waiter sleeps in the driver, which needs a nudge to see ctx end
	w, hasWaiter := rt.waiter()
	if hasWaiter {
		stop := context.AfterFunc(ctx, w.Notify)
		defer stop()
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay, ok := rt.serviceOnce()

		wait := rt.serviceInterval
		if ok && delay < wait {
			wait = delay
		}

		if hasWaiter {
			if err := w.Wait(wait); err != nil {
				rt.log.Error().Err(err).Msg("nic wait failed")
			}
			continue
		}

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (rt *Runtime) waiter() (Waiter, bool) {
	rt.nic.mu.Lock()
	defer rt.nic.mu.Unlock()

	w, ok := rt.nic.driver.(Waiter)
	return w, ok
}

// serviceOnce runs the executor if it is free. Otherwise another thread is
// running it and will execute whatever becomes ready, so only the driver is
// stepped, under the driver lock, to consume its pending events.
func (rt *Runtime) serviceOnce() (time.Duration, bool) {
	if rt.exec.TryLock() {
		defer rt.exec.Unlock()
		return rt.run()
	}

	now := rt.now()
	for {
		rt.pollDriver(now)
		if woken, delay, ok := rt.settleDriver(now); !woken {
			return delay, ok
		}
	}
}
