//go:build linux

package internal

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type PollFlags uint32

const (
	ReadFlags  = PollFlags(unix.EPOLLIN)
	WriteFlags = PollFlags(unix.EPOLLOUT)
	RHupFlags  = PollFlags(unix.EPOLLRDHUP)
	HupFlags   = PollFlags(unix.EPOLLHUP)
	ErrFlags   = PollFlags(unix.EPOLLERR)

	// Registrations are edge-triggered: a handler hears about a transition
	// once, and must drain the fd until EAGAIN before waiting again.
	registerFlags = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET
)

// Handler is invoked by Poll with the flags epoll reported for a fd.
type Handler func(PollFlags)

// Poller is an edge-triggered epoll instance with an eventfd to kick it out of
// Wait.
type Poller struct {
	// fd is the file descriptor returned by calling epoll_create1(0).
	fd int

	// events contains the events which occured in the last Poll.
	events []unix.EpollEvent

	// waker interrupts a Wait when Kick is called.
	waker *EventFd

	// lck synchronizes access to handlers. Poll runs under the driver lock
	// while fds are added and removed from any goroutine.
	lck      sync.Mutex
	handlers map[int]Handler

	// closed is true if the close() has been called on fd
	closed uint32
}

func NewPoller() (*Poller, error) {
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	eventFd, err := NewEventFd()
	if err != nil {
		unix.Close(epollFd)
		return nil, err
	}

	p := &Poller{
		fd:       epollFd,
		waker:    eventFd,
		events:   make([]unix.EpollEvent, 128),
		handlers: make(map[int]Handler),
	}

	err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, p.waker.Fd(), &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(p.waker.Fd()),
	})
	if err != nil {
		p.waker.Close()
		unix.Close(p.fd)
		return nil, os.NewSyscallError("epoll_ctl_add", err)
	}

	return p, nil
}

// Add registers fd for read, write and peer-hangup edges.
func (p *Poller) Add(fd int, h Handler) error {
	p.lck.Lock()
	p.handlers[fd] = h
	p.lck.Unlock()

	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: registerFlags,
		Fd:     int32(fd),
	})
	if err != nil {
		p.lck.Lock()
		delete(p.handlers, fd)
		p.lck.Unlock()
		return os.NewSyscallError("epoll_ctl_add", err)
	}
	return nil
}

func (p *Poller) Del(fd int) error {
	p.lck.Lock()
	_, ok := p.handlers[fd]
	delete(p.handlers, fd)
	p.lck.Unlock()

	if !ok {
		return nil
	}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return os.NewSyscallError("epoll_ctl_del", err)
	}
	return nil
}

// Registered returns the number of fds added to the poller.
func (p *Poller) Registered() int {
	p.lck.Lock()
	defer p.lck.Unlock()
	return len(p.handlers)
}

// Poll waits at most timeoutMs for events and dispatches them to their
// handlers. It returns the number of handlers invoked; kicks are consumed but
// not counted.
func (p *Poller) Poll(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.fd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		event := &p.events[i]
		fd := int(event.Fd)

		if fd == p.waker.Fd() {
			p.waker.Drain()
			continue
		}

		p.lck.Lock()
		h, ok := p.handlers[fd]
		p.lck.Unlock()

		if ok {
			h(PollFlags(event.Events))
			dispatched++
		}
	}

	return dispatched, nil
}

// Wait blocks until the poller has events ready, it is kicked, or timeoutMs
// elapses. It does not consume the events.
func (p *Poller) Wait(timeoutMs int) error {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	_, err := unix.Poll(fds, timeoutMs)
	if err != nil && err != unix.EINTR {
		return os.NewSyscallError("poll", err)
	}
	return nil
}

// Kick makes a concurrent or subsequent Wait return. It is safe for
// concurrent use.
func (p *Poller) Kick() error {
	return p.waker.Write(1)
}

func (p *Poller) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return io.EOF
	}

	p.lck.Lock()
	p.handlers = make(map[int]Handler)
	p.lck.Unlock()

	p.waker.Close()
	return unix.Close(p.fd)
}

func (p *Poller) Closed() bool {
	return atomic.LoadUint32(&p.closed) == 1
}
