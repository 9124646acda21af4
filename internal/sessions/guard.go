package sessions

import "sync"

// Guard undoes exactly one (key, sender) registration. The connection layer
// holds it for the lifetime of that interest and must Release it on every
// exit path, normally via defer. A connection typically holds several guards
// at once (user session, open video, collab membership); each is independent.
type Guard struct {
	once    sync.Once
	release func()
}

func newGuard(release func()) *Guard {
	return &Guard{release: release}
}

// Release removes the registration this guard was issued for. It is
// idempotent and safe to call during a panic unwind; anything beyond the
// first call is a no-op.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(g.release)
}
