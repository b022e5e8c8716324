//go:build linux

package util

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PinThread pins the calling OS thread to cpu. The caller must have locked its
// goroutine to the thread. The returned function restores the affinity the
// thread had before.
func PinThread(cpu int) (restore func() error, err error) {
	prev := &unix.CPUSet{}
	if err := unix.SchedGetaffinity(0, prev); err != nil {
		return nil, err
	}

	set := &unix.CPUSet{}
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, set); err != nil {
		return nil, err
	}

	verify := &unix.CPUSet{}
	if err := unix.SchedGetaffinity(0, verify); err != nil {
		return nil, err
	}
	if verify.Count() != 1 || !verify.IsSet(cpu) {
		_ = unix.SchedSetaffinity(0, prev)
		return nil, fmt.Errorf("could not pin to CPU %d", cpu)
	}

	return func() error {
		return unix.SchedSetaffinity(0, prev)
	}, nil
}
