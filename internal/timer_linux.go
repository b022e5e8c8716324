//go:build linux

package internal

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Timer is a one-shot, non-blocking timerfd.
type Timer struct {
	fd int
	b  [8]byte
}

func NewTimer() (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("timerfd_create", err)
	}
	return &Timer{fd: fd}, nil
}

func (t *Timer) Fd() int {
	return t.fd
}

// Arm makes the timer expire once after dur. A non-positive dur expires it
// right away.
func (t *Timer) Arm(dur time.Duration) error {
	if dur <= 0 {
		// a zero it_value disarms, use the smallest delay instead
		dur = time.Nanosecond
	}
	err := unix.TimerfdSettime(t.fd, 0, &unix.ItimerSpec{
		Value: unix.NsecToTimespec(dur.Nanoseconds()),
	}, nil)
	if err != nil {
		return os.NewSyscallError("timerfd_settime", err)
	}
	return nil
}

func (t *Timer) Disarm() error {
	err := unix.TimerfdSettime(t.fd, 0, &unix.ItimerSpec{}, nil)
	if err != nil {
		return os.NewSyscallError("timerfd_settime", err)
	}
	return nil
}

// Expired consumes the expiration count and reports whether it was non zero.
func (t *Timer) Expired() bool {
	n, err := unix.Read(t.fd, t.b[:])
	return err == nil && n == len(t.b)
}

func (t *Timer) Close() error {
	return unix.Close(t.fd)
}
