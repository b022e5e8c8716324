//go:build linux

package internal

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// EventFd is a non-blocking eventfd used to kick a Poller out of a Wait.
type EventFd struct {
	fd int
	b  [8]byte
}

func NewEventFd() (*EventFd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	return &EventFd{fd: fd}, nil
}

func (e *EventFd) Write(x uint64) error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], x)
	_, err := unix.Write(e.fd, b[:])
	if err == unix.EAGAIN {
		// The counter is saturated, a reader is bound to wake up anyway.
		return nil
	}
	return err
}

// Drain resets the counter.
func (e *EventFd) Drain() {
	for {
		if _, err := unix.Read(e.fd, e.b[:]); err != nil {
			return
		}
	}
}

func (e *EventFd) Fd() int {
	return e.fd
}

func (e *EventFd) Close() error {
	return unix.Close(e.fd)
}
