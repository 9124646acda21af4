// Package sessions is the in-process session registry and broadcast layer.
//
// It tracks which live client connections are interested in which user account,
// which video and which collaborative viewing session, and fans outbound messages
// to the matching connections. Registrations hand back a Guard that undoes exactly
// that registration; broadcasts never block on network I/O, they only enqueue onto
// per-connection send queues owned by the transport layer.
package sessions
