package hermitio

import (
	"sync/atomic"
)

// AsyncWakerSocket connects the readiness events a driver reports for one
// socket with the futures waiting on it.
//
// There is at most one waiting future per direction. Registering a waker
// replaces the previous one, which is what single consumer per direction
// callers expect.
type AsyncWakerSocket struct {
	eventFlags atomic.Uint32
	sendWaker  WakerRegistration
	recvWaker  WakerRegistration
	closed     atomic.Bool
}

func NewAsyncWakerSocket() *AsyncWakerSocket {
	return &AsyncWakerSocket{}
}

func (s *AsyncWakerSocket) RegisterSendWaker(w Waker) {
	s.sendWaker.Register(w)
}

func (s *AsyncWakerSocket) RegisterRecvWaker(w Waker) {
	s.recvWaker.Register(w)
}

// EventFlags returns the flags accumulated since the previous call and clears
// them.
func (s *AsyncWakerSocket) EventFlags() EventFlags {
	return EventFlags(s.eventFlags.Swap(uint32(EventNone)))
}

// SendEvent records flags and wakes the futures interested in them: readable
// or rclosed wake the receiver, writable or wclosed wake the sender.
//
// Flags are merged with those not yet consumed by EventFlags, so an edge
// reported by the driver is never dropped by a later one. Events sent after
// Close are ignored.
func (s *AsyncWakerSocket) SendEvent(flags EventFlags) {
	if s.closed.Load() {
		return
	}

	s.eventFlags.Or(uint32(flags))

	if flags&recvEvents != EventNone {
		s.recvWaker.Wake()
	}
	if flags&sendEvents != EventNone {
		s.sendWaker.Wake()
	}
}

// Close wakes both directions so nothing waits on a socket which will never
// report another event. It is safe to call with no waker registered.
func (s *AsyncWakerSocket) Close() {
	s.closed.Store(true)
	s.sendWaker.Wake()
	s.recvWaker.Wake()
}

func (s *AsyncWakerSocket) Closed() bool {
	return s.closed.Load()
}
