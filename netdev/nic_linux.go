//go:build linux

package netdev

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/talostrading/hermitio"
	"github.com/talostrading/hermitio/internal"
)

// NIC is a hermitio.Driver backed by the host's sockets. Poll collects the
// readiness edges epoll reports and hands them to the bound AsyncWakerSocket,
// and fires expired timers.
type NIC struct {
	poller  *internal.Poller
	sockets *hermitio.SocketMap
	log     zerolog.Logger

	// woken is set when the last Poll delivered events, or Notify was called
	// since. WasWoken clears it.
	woken atomic.Bool

	mu     sync.Mutex
	timers map[*Timer]struct{}
}

var (
	_ hermitio.Driver = &NIC{}
	_ hermitio.Waiter = &NIC{}
)

func New(sockets *hermitio.SocketMap, log zerolog.Logger) (*NIC, error) {
	poller, err := internal.NewPoller()
	if err != nil {
		return nil, err
	}

	return &NIC{
		poller:  poller,
		sockets: sockets,
		log:     log.With().Str("component", "nic").Logger(),
		timers:  make(map[*Timer]struct{}),
	}, nil
}

// Attach creates a NIC sharing rt's socket map and logger and installs it as
// rt's driver.
func Attach(rt *hermitio.Runtime) (*NIC, error) {
	n, err := New(rt.Sockets(), rt.Logger())
	if err != nil {
		return nil, err
	}
	if err := rt.InitDriver(n); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func (n *NIC) Poll(_ time.Time) {
	dispatched, err := n.poller.Poll(0)
	if err != nil {
		n.log.Error().Err(err).Msg("poll failed")
		return
	}
	if dispatched > 0 {
		n.woken.Store(true)
	}
}

func (n *NIC) WasWoken() bool {
	return n.woken.Swap(false)
}

// PollDelay returns the time left until the earliest armed timer expires.
func (n *NIC) PollDelay(now time.Time) (time.Duration, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var (
		earliest time.Time
		armed    bool
	)
	for t := range n.timers {
		if !armed || t.deadline.Before(earliest) {
			earliest = t.deadline
			armed = true
		}
	}
	if !armed {
		return 0, false
	}

	d := earliest.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Wait blocks until a socket or timer is ready, Notify is called, or timeout
// elapses.
func (n *NIC) Wait(timeout time.Duration) error {
	ms := int(timeout.Milliseconds())
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	return n.poller.Wait(ms)
}

// Notify asks for another Poll: the run loop polls again and a Wait in
// progress returns.
func (n *NIC) Notify() {
	n.woken.Store(true)
	if err := n.poller.Kick(); err != nil {
		n.log.Error().Err(err).Msg("kick failed")
	}
}

func (n *NIC) Sockets() *hermitio.SocketMap {
	return n.sockets
}

func (n *NIC) Close() error {
	return n.poller.Close()
}

func (n *NIC) armTimer(t *Timer) {
	n.mu.Lock()
	n.timers[t] = struct{}{}
	n.mu.Unlock()
}

func (n *NIC) disarmTimer(t *Timer) {
	n.mu.Lock()
	delete(n.timers, t)
	n.mu.Unlock()
}

func toEventFlags(flags internal.PollFlags) hermitio.EventFlags {
	ev := hermitio.EventNone
	if flags&internal.ReadFlags != 0 {
		ev |= hermitio.EventReadable
	}
	if flags&internal.WriteFlags != 0 {
		ev |= hermitio.EventWritable
	}
	if flags&internal.RHupFlags != 0 {
		ev |= hermitio.EventRClosed
	}
	if flags&internal.HupFlags != 0 {
		ev |= hermitio.EventRClosed | hermitio.EventWClosed
	}
	if flags&internal.ErrFlags != 0 {
		// both directions retry their syscall and surface the error
		ev |= hermitio.EventError | hermitio.EventReadable | hermitio.EventWritable
	}
	return ev
}
