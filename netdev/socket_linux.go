//go:build linux

package netdev

import (
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/talostrading/hermitio"
	"github.com/talostrading/hermitio/hermiterrors"
	"github.com/talostrading/hermitio/hermitopts"
	"github.com/talostrading/hermitio/internal"
	"github.com/talostrading/hermitio/util"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// Socket is a non-blocking stream socket whose readiness is tracked by a NIC.
// Reads and writes are futures: one reader and one writer may wait at a time.
type Socket struct {
	nic    *NIC
	fd     int
	handle hermitio.Socket
	waker  *hermitio.AsyncWakerSocket
	closed atomic.Bool

	localAddr, remoteAddr net.Addr
}

// Register hands fd over to the NIC. The fd is switched to non-blocking mode
// and is closed by Socket.Close.
func (n *NIC) Register(fd int, opts ...hermitopts.Option) (*Socket, error) {
	opts = hermitopts.AddOption(hermitopts.Nonblocking(true), opts)
	if err := internal.ApplyOpts(fd, opts...); err != nil {
		return nil, err
	}

	handle := hermitio.Socket(fd)
	s := &Socket{
		nic:    n,
		fd:     fd,
		handle: handle,
		waker:  n.sockets.Bind(handle),
	}

	if err := n.poller.Add(fd, s.onEvent); err != nil {
		_ = n.sockets.Close(handle)
		return nil, err
	}

	n.log.Debug().Int("fd", fd).Msg("socket registered")
	return s, nil
}

// Dial connects to a TCP address.
func (n *NIC) Dial(network, addr string, timeout time.Duration, opts ...hermitopts.Option) (*Socket, error) {
	fd, localAddr, remoteAddr, err := internal.ConnectTCP(network, addr, timeout, opts...)
	if err != nil {
		return nil, err
	}

	s, err := n.Register(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	s.localAddr = localAddr
	s.remoteAddr = remoteAddr
	return s, nil
}

// Pair returns two connected unix stream sockets.
func (n *NIC) Pair() (*Socket, *Socket, error) {
	fds, err := internal.SocketPair()
	if err != nil {
		return nil, nil, err
	}

	a, err := n.Register(fds[0])
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := n.Register(fds[1])
	if err != nil {
		a.Close()
		unix.Close(fds[1])
		return nil, nil, err
	}
	return a, b, nil
}

func (s *Socket) onEvent(flags internal.PollFlags) {
	// the socket may have been closed while the event was in flight
	_ = s.nic.sockets.SendEvent(s.handle, toEventFlags(flags))
}

func (s *Socket) RawFd() int {
	return s.fd
}

func (s *Socket) Handle() hermitio.Socket {
	return s.handle
}

func (s *Socket) LocalAddr() net.Addr {
	return s.localAddr
}

func (s *Socket) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// Events returns the readiness flags reported since the previous call.
func (s *Socket) Events() hermitio.EventFlags {
	return s.waker.EventFlags()
}

func (s *Socket) Closed() bool {
	return s.closed.Load()
}

// Close unregisters the socket, wakes its waiting reader and writer, which
// then complete with hermiterrors.ErrClosed, and closes the fd.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return io.EOF
	}

	err := s.nic.poller.Del(s.fd)
	_ = s.nic.sockets.Close(s.handle)
	if cerr := unix.Close(s.fd); err == nil && cerr != nil {
		err = os.NewSyscallError("close", cerr)
	}
	s.nic.Notify()
	return err
}

type ReadResult = hermitio.Result[*bytebufferpool.ByteBuffer]

type readFuture struct {
	s   *Socket
	max int
}

// Read returns a future reading at most max bytes. The buffer comes from
// bytebufferpool and should be returned to it with bytebufferpool.Put. A
// closed peer is reported as io.EOF.
func (s *Socket) Read(max int) hermitio.Future[ReadResult] {
	return &readFuture{s: s, max: max}
}

func (f *readFuture) Poll(w hermitio.Waker) (ReadResult, bool) {
	if res, ok := f.try(); ok {
		return res, true
	}
	f.s.waker.RegisterRecvWaker(w)

	// data which arrived before the waker was registered has no edge left
	return f.try()
}

func (f *readFuture) try() (ReadResult, bool) {
	for {
		if f.s.Closed() {
			return ReadResult{Err: hermiterrors.ErrClosed}, true
		}

		b := bytebufferpool.Get()
		b.B = util.ExtendSlice(b.B, f.max)

		n, err := unix.Read(f.s.fd, b.B)
		if err != nil {
			bytebufferpool.Put(b)
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				return ReadResult{}, false
			default:
				return ReadResult{Err: os.NewSyscallError("read", err)}, true
			}
		}

		if n == 0 && f.max > 0 {
			bytebufferpool.Put(b)
			return ReadResult{Err: io.EOF}, true
		}

		b.B = b.B[:n]
		return ReadResult{Value: b}, true
	}
}

type WriteResult = hermitio.Result[int]

type writeFuture struct {
	s       *Socket
	b       []byte
	written int
}

// Write returns a future writing all of b. The result is the number of bytes
// written, which is short of len(b) only with a non-nil error. b must not be
// modified until the future completes.
func (s *Socket) Write(b []byte) hermitio.Future[WriteResult] {
	return &writeFuture{s: s, b: b}
}

func (f *writeFuture) Poll(w hermitio.Waker) (WriteResult, bool) {
	if res, ok := f.try(); ok {
		return res, true
	}
	f.s.waker.RegisterSendWaker(w)
	return f.try()
}

func (f *writeFuture) try() (WriteResult, bool) {
	for f.written < len(f.b) {
		if f.s.Closed() {
			return WriteResult{Value: f.written, Err: hermiterrors.ErrClosed}, true
		}

		n, err := unix.Write(f.s.fd, f.b[f.written:])
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				return WriteResult{}, false
			default:
				return WriteResult{Value: f.written, Err: os.NewSyscallError("write", err)}, true
			}
		}
		f.written += n
	}
	return WriteResult{Value: f.written}, true
}

// Listener accepts TCP connections as futures.
type Listener struct {
	s    *Socket
	addr net.Addr
}

func (n *NIC) Listen(network, addr string, opts ...hermitopts.Option) (*Listener, error) {
	fd, err := internal.ListenTCP(network, addr, opts...)
	if err != nil {
		return nil, err
	}

	localAddr, err := internal.SocketAddress(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	s, err := n.Register(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	s.localAddr = localAddr

	return &Listener{s: s, addr: localAddr}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.addr
}

func (l *Listener) Close() error {
	return l.s.Close()
}

type AcceptResult = hermitio.Result[*Socket]

type acceptFuture struct {
	l    *Listener
	opts []hermitopts.Option
}

// Accept returns a future completing with the next connection. opts are
// applied to the accepted socket.
func (l *Listener) Accept(opts ...hermitopts.Option) hermitio.Future[AcceptResult] {
	return &acceptFuture{l: l, opts: opts}
}

func (f *acceptFuture) Poll(w hermitio.Waker) (AcceptResult, bool) {
	if res, ok := f.try(); ok {
		return res, true
	}
	f.l.s.waker.RegisterRecvWaker(w)
	return f.try()
}

func (f *acceptFuture) try() (AcceptResult, bool) {
	if f.l.s.Closed() {
		return AcceptResult{Err: hermiterrors.ErrClosed}, true
	}

	fd, remoteAddr, err := internal.Accept(f.l.s.fd)
	if err == hermiterrors.ErrWouldBlock {
		return AcceptResult{}, false
	}
	if err != nil {
		return AcceptResult{Err: err}, true
	}

	s, err := f.l.s.nic.Register(fd, f.opts...)
	if err != nil {
		unix.Close(fd)
		return AcceptResult{Err: err}, true
	}
	s.localAddr = f.l.addr
	s.remoteAddr = remoteAddr
	return AcceptResult{Value: s}, true
}
