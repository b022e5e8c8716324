//go:build linux

package internal

import (
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"time"

	"github.com/talostrading/hermitio/hermiterrors"
	"github.com/talostrading/hermitio/hermitopts"
	"golang.org/x/sys/unix"
)

var (
	ListenBacklog int = 2048

	errUnknownNetwork = errors.New("unknown network argument")
)

func CreateSocket(addr net.Addr) (int, error) {
	var (
		domain int
		typ    int
	)

	switch addr := addr.(type) {
	case *net.TCPAddr:
		domain, typ = unix.AF_INET, unix.SOCK_STREAM
		if addr.IP.To4() == nil && len(addr.IP) == net.IPv6len {
			domain = unix.AF_INET6
		}
	default:
		return -1, fmt.Errorf("unknown address type: %s", reflect.TypeOf(addr))
	}

	fd, err := unix.Socket(domain, typ|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}

	return fd, nil
}

// SocketPair returns a connected pair of non-blocking unix stream sockets.
func SocketPair() (fds [2]int, err error) {
	fds, err = unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fds, os.NewSyscallError("socketpair", err)
	}
	return fds, nil
}

// ConnectTCP connects a non-blocking TCP socket to addr, waiting at most
// timeout for the connection to be established.
func ConnectTCP(
	network, addr string,
	timeout time.Duration,
	opts ...hermitopts.Option,
) (fd int, localAddr, remoteAddr net.Addr, err error) {
	if len(network) < 3 || network[:3] != "tcp" {
		return -1, nil, nil, errUnknownNetwork
	}

	remoteAddr, err = net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, nil, nil, err
	}

	fd, err = CreateSocket(remoteAddr)
	if err != nil {
		return -1, nil, nil, err
	}

	opts = hermitopts.AddOption(hermitopts.Nonblocking(true), opts)
	if err = ApplyOpts(fd, opts...); err != nil {
		unix.Close(fd)
		return -1, nil, nil, err
	}

	err = unix.Connect(fd, ToSockaddr(remoteAddr))
	if err != nil {
		// this can happen if the socket is nonblocking, so we fix it with a poll
		// https://man7.org/linux/man-pages/man2/connect.2.html#EINPROGRESS
		if err != unix.EINPROGRESS && err != unix.EAGAIN {
			unix.Close(fd)
			return -1, nil, nil, os.NewSyscallError("connect", err)
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if err != nil {
			unix.Close(fd)
			return -1, nil, nil, os.NewSyscallError("poll", err)
		}

		if n == 0 {
			unix.Close(fd)
			return -1, nil, nil, hermiterrors.ErrTimedOut
		}

		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			unix.Close(fd)
			return -1, nil, nil, os.NewSyscallError("getsockopt", err)
		}
		if soErr != 0 {
			unix.Close(fd)
			return -1, nil, nil, os.NewSyscallError("connect", unix.Errno(soErr))
		}
	}

	localAddr, err = SocketAddress(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, nil, err
	}

	return fd, localAddr, remoteAddr, nil
}

// ListenTCP returns a non-blocking listening socket bound to addr.
func ListenTCP(network, addr string, opts ...hermitopts.Option) (fd int, err error) {
	if len(network) < 3 || network[:3] != "tcp" {
		return -1, errUnknownNetwork
	}

	localAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, err
	}

	fd, err = CreateSocket(localAddr)
	if err != nil {
		return -1, err
	}

	opts = hermitopts.AddOption(hermitopts.Nonblocking(true), opts)
	if err := ApplyOpts(fd, opts...); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Bind(fd, ToSockaddr(localAddr)); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("bind", err)
	}

	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("listen", err)
	}

	return fd, nil
}

// Accept accepts a connection on a non-blocking listener. It returns
// hermiterrors.ErrWouldBlock when no connection is pending.
func Accept(fd int) (int, net.Addr, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN {
			return -1, nil, hermiterrors.ErrWouldBlock
		}
		return -1, nil, os.NewSyscallError("accept", err)
	}
	return nfd, FromSockaddr(sa), nil
}

func ApplyOpts(fd int, opts ...hermitopts.Option) error {
	for _, opt := range opts {
		switch t := opt.Type(); t {
		case hermitopts.TypeNonblocking:
			v := opt.Value().(bool)
			if err := unix.SetNonblock(fd, v); err != nil {
				return os.NewSyscallError(fmt.Sprintf("set_nonblock(%v)", v), err)
			}
		case hermitopts.TypeReusePort:
			v := opt.Value().(bool)
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(v)); err != nil {
				return os.NewSyscallError(fmt.Sprintf("reuse_port(%v)", v), err)
			}
		case hermitopts.TypeReuseAddr:
			v := opt.Value().(bool)
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(v)); err != nil {
				return os.NewSyscallError(fmt.Sprintf("reuse_address(%v)", v), err)
			}
		case hermitopts.TypeNoDelay:
			v := opt.Value().(bool)
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(v)); err != nil {
				return os.NewSyscallError(fmt.Sprintf("tcp_no_delay(%v)", v), err)
			}
		default:
			return fmt.Errorf("unsupported socket option %s", t)
		}
	}

	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func SocketAddress(fd int) (net.Addr, error) {
	addr, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	return FromSockaddr(addr), nil
}

func ToSockaddr(addr net.Addr) unix.Sockaddr {
	switch addr := addr.(type) {
	case *net.TCPAddr:
		if ip4 := addr.IP.To4(); ip4 != nil || len(addr.IP) == 0 {
			sa := &unix.SockaddrInet4{Port: addr.Port}
			copy(sa.Addr[:], ip4)
			return sa
		}
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], addr.IP.To16())
		return sa
	default:
		panic(fmt.Sprintf("unsupported address type: %s", reflect.TypeOf(addr)))
	}
}

func FromSockaddr(sockAddr unix.Sockaddr) net.Addr {
	switch addr := sockAddr.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{
			IP:   append([]byte{}, addr.Addr[:]...),
			Port: addr.Port,
		}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{
			IP:   append([]byte{}, addr.Addr[:]...),
			Port: addr.Port,
		}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{
			Name: addr.Name,
			Net:  "unix",
		}
	default:
		return nil
	}
}
