package sessions

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// sendQueueSize bounds how far a connection's write pump may fall behind
// before broadcasts to it start failing.
const sendQueueSize = 64

// endpoint is the shared state behind every copy of a Sender. Identity of a
// connection is identity of its endpoint.
type endpoint struct {
	ch     chan []byte
	closed atomic.Bool
}

// Sender is a cheap, copyable handle for enqueueing outbound messages to one
// live client connection. Copying a Sender does not create a new connection;
// all copies enqueue to the same queue and compare as the same channel.
type Sender struct {
	id uuid.UUID
	ep *endpoint
}

// NewSender creates a sender and the receive side of its queue. The
// connection's write pump owns draining the channel and must call Close when
// it stops, so that pending broadcasts fail instead of piling up.
func NewSender() (Sender, <-chan []byte) {
	ep := &endpoint{ch: make(chan []byte, sendQueueSize)}
	return Sender{id: uuid.New(), ep: ep}, ep.ch
}

// ID is a correlation id for logs. Identity comparisons go through
// SameChannel, never through the id.
func (s Sender) ID() uuid.UUID { return s.id }

// SameChannel reports whether both handles enqueue to the same underlying
// connection.
func (s Sender) SameChannel(other Sender) bool { return s.ep == other.ep }

// Send enqueues one message without blocking. It fails if the receiver is
// gone or no longer draining its queue.
func (s Sender) Send(msg []byte) error {
	if s.ep.closed.Load() {
		return ErrSenderClosed
	}
	select {
	case s.ep.ch <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close marks the receiver gone; subsequent Sends fail. The channel itself is
// left open so the write pump can drain whatever was already enqueued.
func (s Sender) Close() { s.ep.closed.Store(true) }
