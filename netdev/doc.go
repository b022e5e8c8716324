// Package netdev provides a hermitio.Driver for Linux hosts.
//
// The NIC owns an edge-triggered epoll instance. Every registered socket is
// bound to an AsyncWakerSocket in the runtime's SocketMap; each Poll of the
// NIC turns the edges epoll reports into event flags delivered to those
// sockets, which wake the futures waiting on them.
//
//	rt := hermitio.Default()
//	nic, err := netdev.Attach(rt)
//	...
//	go rt.ServeNIC(ctx)
//	conn, err := nic.Dial("tcp", "localhost:8080", time.Second)
//	res, err := hermitio.BlockOn(rt, conn.Write([]byte("hello")))
package netdev
