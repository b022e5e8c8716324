//go:build linux

package hermitio

import (
	"sync"

	"github.com/talostrading/hermitio/internal"
)

var defaultRuntime = sync.OnceValue(func() *Runtime {
	return NewRuntime(internal.NewHostKernel())
})

// Default returns the process-wide Runtime, built on first use on top of the
// host's OS threads. Its driver still has to be installed with InitDriver.
func Default() *Runtime {
	return defaultRuntime()
}
