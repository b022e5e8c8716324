package hermitio

import "time"

// PollingGuard keeps the kernel in polling mode and holds the executor lock
// for as long as it is active.
//
// Release must be called on every path, typically with defer. It turns the
// polling mode off, flushes the executor one last time with interrupts
// disabled and then restores the interrupt state it found.
type PollingGuard struct {
	rt       *Runtime
	held     bool
	released bool
}

func (rt *Runtime) NewPollingGuard() *PollingGuard {
	rt.kernel.SetPollingMode(true)
	rt.exec.Lock()

	return &PollingGuard{
		rt:   rt,
		held: true,
	}
}

// Run runs the executor once and returns the driver's recommended delay.
func (g *PollingGuard) Run() (time.Duration, bool) {
	if !g.held {
		panic("hermitio: polling guard does not hold the executor")
	}
	return g.rt.run()
}

// YieldNow lets other threads, such as the NIC service loop, take the executor
// while this thread gives up its quantum, or stays parked if it asked the
// kernel to block. The guard holds the executor again and has run it once
// when YieldNow returns.
func (g *PollingGuard) YieldNow() {
	k := g.rt.kernel

	g.held = false
	g.rt.exec.Unlock()

	k.SetPollingMode(false)
	k.Yield()

	g.rt.exec.Lock()
	g.held = true

	g.rt.run()
	k.SetPollingMode(true)
}

func (g *PollingGuard) Release() {
	if g.released {
		return
	}
	g.released = true

	k := g.rt.kernel
	irq := k.DisableInterrupts()
	k.SetPollingMode(false)

	defer func() {
		if irq {
			k.EnableInterrupts()
		}
		if g.held {
			g.held = false
			g.rt.exec.Unlock()
		}
	}()

	if g.held {
		g.rt.run()
	}
}
