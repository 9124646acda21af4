package sessions

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/azazel75/clapshot/internal/metrics"
)

// senderMap maps a string key to the senders currently registered under it.
// The registry's three maps (user id, video hash, collab id) are instances of
// this type. A key is present iff its list is non-empty; the same sender may
// be registered under the same key more than once, once per guard.
type senderMap struct {
	name string // map label for logs and metrics
	mu   sync.RWMutex
	m    map[string][]Sender
}

func newSenderMap(name string) *senderMap {
	return &senderMap{name: name, m: make(map[string][]Sender)}
}

// insert appends sender under key and returns the guard that undoes it.
// Never fails.
func (sm *senderMap) insert(key string, s Sender) *Guard {
	sm.mu.Lock()
	sm.m[key] = append(sm.m[key], s)
	sm.mu.Unlock()

	metrics.RegistryRegistrations.WithLabelValues(sm.name).Inc()
	slog.Debug("Session registered", "map", sm.name, "key", key, "sender_id", s.ID())
	return newGuard(func() { sm.remove(key, s) })
}

// remove drops the first registration of s under key and prunes the key once
// its list empties. Removing a sender that is not present is a no-op, which
// makes guard release idempotent even across races with other removals.
func (sm *senderMap) remove(key string, s Sender) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	list, ok := sm.m[key]
	if !ok {
		return
	}
	for i := range list {
		if list[i].SameChannel(s) {
			list = append(list[:i], list[i+1:]...)
			metrics.RegistryRegistrations.WithLabelValues(sm.name).Dec()
			slog.Debug("Session deregistered", "map", sm.name, "key", key, "sender_id", s.ID())
			break
		}
	}
	if len(list) == 0 {
		delete(sm.m, key)
	} else {
		sm.m[key] = list
	}
}

// broadcast enqueues msg on every sender registered under key, in insertion
// order. It aborts on the first failed send: earlier enqueues are not rolled
// back and the partial count is not reported back. On success it returns the
// number of senders reached; an absent key is an empty list, not an error.
func (sm *senderMap) broadcast(key string, msg []byte) (int, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sent := 0
	for _, s := range sm.m[key] {
		if err := s.Send(msg); err != nil {
			metrics.RegistryBroadcasts.WithLabelValues(sm.name, "failed").Inc()
			return 0, fmt.Errorf("broadcast to %s %q: %w", sm.name, key, err)
		}
		sent++
	}
	metrics.RegistryBroadcasts.WithLabelValues(sm.name, "ok").Inc()
	metrics.RegistryMessagesSent.WithLabelValues(sm.name).Add(float64(sent))
	return sent, nil
}

// contains reports whether s is currently registered under key.
func (sm *senderMap) contains(key string, s Sender) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, x := range sm.m[key] {
		if x.SameChannel(s) {
			return true
		}
	}
	return false
}

// count returns the number of registrations under key.
func (sm *senderMap) count(key string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.m[key])
}

// keys returns the currently present (non-empty) keys, in no particular order.
func (sm *senderMap) keys() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]string, 0, len(sm.m))
	for k := range sm.m {
		out = append(out, k)
	}
	return out
}
