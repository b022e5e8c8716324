package hermiterrors

import "errors"

var (
	ErrWouldBlock         = errors.New("operation would block")
	ErrTimedOut           = errors.New("executor timed out")
	ErrClosed             = errors.New("socket closed")
	ErrNotInitialized     = errors.New("network interface not initialized")
	ErrAlreadyInitialized = errors.New("network interface already initialized")
	ErrUnknownSocket      = errors.New("unknown socket") // no waker socket bound to the handle
)
