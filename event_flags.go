package hermitio

import "strings"

// EventFlags is the readiness state a driver reports for a socket.
type EventFlags uint32

const (
	EventNone     EventFlags = 0
	EventReadable EventFlags = 1 << 0
	EventWritable EventFlags = 1 << 1

	// EventRClosed means the peer will not send anything more.
	EventRClosed EventFlags = 1 << 2

	// EventWClosed means nothing more can be sent.
	EventWClosed EventFlags = 1 << 3

	EventError EventFlags = 1 << 4
)

const (
	recvEvents = EventReadable | EventRClosed
	sendEvents = EventWritable | EventWClosed
)

func (f EventFlags) Has(x EventFlags) bool {
	return f&x == x
}

func (f EventFlags) String() string {
	if f == EventNone {
		return "none"
	}

	var names []string
	for _, x := range []struct {
		flag EventFlags
		name string
	}{
		{EventReadable, "readable"},
		{EventWritable, "writable"},
		{EventRClosed, "rclosed"},
		{EventWClosed, "wclosed"},
		{EventError, "error"},
	} {
		if f&x.flag != 0 {
			names = append(names, x.name)
		}
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, "|")
}
