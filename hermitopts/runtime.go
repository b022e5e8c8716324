package hermitopts

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/talostrading/hermitio/util"
)

// Runtime options, consumed by hermitio.NewRuntime.

const (
	// DefaultSpinThreshold is how long a blocked caller keeps polling before
	// it is allowed to park its kernel thread.
	DefaultSpinThreshold = 100 * time.Millisecond

	// DefaultParkDelayThreshold is the driver delay above which parking is
	// allowed. Shorter delays mean the driver needs a step soon, so the
	// caller keeps polling instead.
	DefaultParkDelayThreshold = 1000 * time.Millisecond

	// DefaultServiceInterval caps how long the NIC service loop sleeps
	// between two runs of the executor.
	DefaultServiceInterval = 50 * time.Millisecond
)

type optionSpinThreshold struct {
	v time.Duration
}

func SpinThreshold(v time.Duration) Option {
	return &optionSpinThreshold{
		v: v,
	}
}

func (o *optionSpinThreshold) Type() OptionType {
	return TypeSpinThreshold
}

func (o *optionSpinThreshold) Value() interface{} {
	return o.v
}

type optionParkDelayThreshold struct {
	v time.Duration
}

func ParkDelayThreshold(v time.Duration) Option {
	return &optionParkDelayThreshold{
		v: v,
	}
}

func (o *optionParkDelayThreshold) Type() OptionType {
	return TypeParkDelayThreshold
}

func (o *optionParkDelayThreshold) Value() interface{} {
	return o.v
}

type optionLogger struct {
	v zerolog.Logger
}

func Logger(v zerolog.Logger) Option {
	return &optionLogger{
		v: v,
	}
}

func (o *optionLogger) Type() OptionType {
	return TypeLogger
}

func (o *optionLogger) Value() interface{} {
	return o.v
}

type optionClock struct {
	v func() time.Time
}

// Clock replaces time.Now as the source of the executor's timestamps.
func Clock(v func() time.Time) Option {
	return &optionClock{
		v: v,
	}
}

func (o *optionClock) Type() OptionType {
	return TypeClock
}

func (o *optionClock) Value() interface{} {
	return o.v
}

type optionServiceInterval struct {
	v time.Duration
}

func ServiceInterval(v time.Duration) Option {
	return &optionServiceInterval{
		v: v,
	}
}

func (o *optionServiceInterval) Type() OptionType {
	return TypeServiceInterval
}

func (o *optionServiceInterval) Value() interface{} {
	return o.v
}

type optionPinCPU struct {
	v int
}

// PinCPU pins the NIC service loop's OS thread to the given CPU.
func PinCPU(cpu int) Option {
	return &optionPinCPU{
		v: cpu,
	}
}

func (o *optionPinCPU) Type() OptionType {
	return TypePinCPU
}

func (o *optionPinCPU) Value() interface{} {
	return o.v
}

type optionStats struct {
	v *util.RuntimeStats
}

// Stats attaches a recorder for run-loop and park latencies.
func Stats(v *util.RuntimeStats) Option {
	return &optionStats{
		v: v,
	}
}

func (o *optionStats) Type() OptionType {
	return TypeStats
}

func (o *optionStats) Value() interface{} {
	return o.v
}
