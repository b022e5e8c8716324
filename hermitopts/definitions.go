package hermitopts

import "fmt"

type OptionType uint8

type Option interface {
	Type() OptionType
	Value() interface{}
}

const (
	TypeNonblocking OptionType = iota
	TypeReusePort
	TypeReuseAddr
	TypeNoDelay
	TypeSpinThreshold
	TypeParkDelayThreshold
	TypeLogger
	TypeClock
	TypeServiceInterval
	TypePinCPU
	TypeStats
	MaxOption
)

func (t OptionType) String() string {
	switch t {
	case TypeNonblocking:
		return "nonblocking"
	case TypeReusePort:
		return "reuse_port"
	case TypeReuseAddr:
		return "reuse_addr"
	case TypeNoDelay:
		return "no_delay"
	case TypeSpinThreshold:
		return "spin_threshold"
	case TypeParkDelayThreshold:
		return "park_delay_threshold"
	case TypeLogger:
		return "logger"
	case TypeClock:
		return "clock"
	case TypeServiceInterval:
		return "service_interval"
	case TypePinCPU:
		return "pin_cpu"
	case TypeStats:
		return "stats"
	default:
		panic(fmt.Errorf("invalid option %d", t))
	}
}

func AddOption(add Option, opts []Option) []Option {
	for i, cur := range opts {
		if cur.Type() == add.Type() {
			opts[i] = add
			return opts
		}
	}
	opts = append(opts, add)
	return opts
}

func DelOption(del OptionType, opts []Option) []Option {
	for i := 0; i < len(opts); i++ {
		if opts[i].Type() == del {
			return append(opts[:i], opts[i+1:]...)
		}
	}
	return opts
}
