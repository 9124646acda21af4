package sessions

import "errors"

var (
	// ErrSenderClosed means the receiving side of a sender is gone. A broadcast
	// hitting it aborts immediately.
	ErrSenderClosed = errors.New("sender closed")

	// ErrSendQueueFull means the receiver stopped draining its queue. Treated
	// the same as a closed sender: the connection is not keeping up.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrCollabVideoMismatch rejects a join to an existing collab that was
	// created for a different video. Nothing changes on rejection; the id can
	// be rebound only after every participant has left.
	ErrCollabVideoMismatch = errors.New("mismatching video hash for pre-existing collab")

	// ErrShuttingDown is returned by broadcasts once server termination has
	// begun. Guard releases during shutdown are still honored, just logged.
	ErrShuttingDown = errors.New("server is shutting down")
)
