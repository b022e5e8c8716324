package hermitopts

// Socket options, applied to raw file descriptors by the netdev package.

type optionNonblocking struct {
	v bool
}

func Nonblocking(v bool) Option {
	return &optionNonblocking{
		v: v,
	}
}

func (o *optionNonblocking) Type() OptionType {
	return TypeNonblocking
}

func (o *optionNonblocking) Value() interface{} {
	return o.v
}

type optionReusePort struct {
	v bool
}

func ReusePort(v bool) Option {
	return &optionReusePort{
		v: v,
	}
}

func (o *optionReusePort) Type() OptionType {
	return TypeReusePort
}

func (o *optionReusePort) Value() interface{} {
	return o.v
}

type optionReuseAddr struct {
	v bool
}

func ReuseAddr(v bool) Option {
	return &optionReuseAddr{
		v: v,
	}
}

func (o *optionReuseAddr) Type() OptionType {
	return TypeReuseAddr
}

func (o *optionReuseAddr) Value() interface{} {
	return o.v
}

type optionNoDelay struct {
	v bool
}

func NoDelay(v bool) Option {
	return &optionNoDelay{
		v: v,
	}
}

func (o *optionNoDelay) Type() OptionType {
	return TypeNoDelay
}

func (o *optionNoDelay) Value() interface{} {
	return o.v
}
