package hermitio

import (
	"sync"

	"github.com/talostrading/hermitio/hermiterrors"
)

// Socket is the handle the socket layer uses for a socket.
type Socket int32

// SocketMap binds socket handles to their AsyncWakerSocket.
type SocketMap struct {
	mu      sync.RWMutex
	sockets map[Socket]*AsyncWakerSocket
}

func NewSocketMap() *SocketMap {
	return &SocketMap{
		sockets: make(map[Socket]*AsyncWakerSocket),
	}
}

// Bind attaches a fresh AsyncWakerSocket to s, replacing any previous one.
func (m *SocketMap) Bind(s Socket) *AsyncWakerSocket {
	ws := NewAsyncWakerSocket()

	m.mu.Lock()
	prev := m.sockets[s]
	m.sockets[s] = ws
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return ws
}

func (m *SocketMap) Get(s Socket) (*AsyncWakerSocket, error) {
	m.mu.RLock()
	ws, ok := m.sockets[s]
	m.mu.RUnlock()

	if !ok {
		return nil, hermiterrors.ErrUnknownSocket
	}
	return ws, nil
}

func (m *SocketMap) SendEvent(s Socket, flags EventFlags) error {
	ws, err := m.Get(s)
	if err != nil {
		return err
	}
	ws.SendEvent(flags)
	return nil
}

func (m *SocketMap) EventFlags(s Socket) (EventFlags, error) {
	ws, err := m.Get(s)
	if err != nil {
		return EventNone, err
	}
	return ws.EventFlags(), nil
}

// Close closes the AsyncWakerSocket bound to s and unbinds it.
func (m *SocketMap) Close(s Socket) error {
	m.mu.Lock()
	ws, ok := m.sockets[s]
	delete(m.sockets, s)
	m.mu.Unlock()

	if !ok {
		return hermiterrors.ErrUnknownSocket
	}
	ws.Close()
	return nil
}

func (m *SocketMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sockets)
}
