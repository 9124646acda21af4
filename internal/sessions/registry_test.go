package sessions

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *atomic.Bool) {
	t.Helper()
	var terminate atomic.Bool
	r := NewRegistry(nil, t.TempDir(), t.TempDir(), "http://localhost:8095", &terminate)
	return r, &terminate
}

func TestBroadcastReachesAllUserSessions(t *testing.T) {
	r, _ := newTestRegistry(t)

	s1, recv1 := NewSender()
	s2, recv2 := NewSender()
	g1 := r.RegisterUserSession("alice", s1)
	g2 := r.RegisterUserSession("alice", s2)
	defer g1.Release()
	defer g2.Release()

	n, err := r.SendToUserSessions("alice", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "hello", string(<-recv1))
	assert.Equal(t, "hello", string(<-recv2))
}

func TestBroadcastToUnknownKeyIsEmpty(t *testing.T) {
	r, _ := newTestRegistry(t)

	n, err := r.SendToVideoViewers("nosuchhash", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReleaseRemovesExactlyOneRegistration(t *testing.T) {
	r, _ := newTestRegistry(t)

	s1, recv1 := NewSender()
	s2, recv2 := NewSender()
	g1 := r.RegisterUserSession("alice", s1)
	g2 := r.RegisterUserSession("alice", s2)

	g1.Release()
	g1.Release() // second release must not touch s2

	n, err := r.SendToUserSessions("alice", []byte("still here"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "still here", string(<-recv2))
	select {
	case msg := <-recv1:
		t.Fatalf("released sender received %q", msg)
	default:
	}

	g2.Release()
}

func TestKeyPrunedWhenLastSessionLeaves(t *testing.T) {
	r, _ := newTestRegistry(t)

	s, _ := NewSender()
	g := r.LinkSessionToVideo("abc12345", s)
	assert.Contains(t, r.videos.keys(), "abc12345")

	g.Release()
	assert.Empty(t, r.videos.keys())
	assert.Equal(t, 0, r.videos.count("abc12345"))
}

func TestDuplicateRegistrationsAreIndependent(t *testing.T) {
	r, _ := newTestRegistry(t)

	// The same connection registered twice under one key gets the message
	// twice, and each guard undoes one registration.
	s, recv := NewSender()
	g1 := r.LinkSessionToVideo("abc12345", s)
	g2 := r.LinkSessionToVideo("abc12345", s)

	n, err := r.SendToVideoViewers("abc12345", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	<-recv
	<-recv

	g1.Release()
	assert.Equal(t, 1, r.videos.count("abc12345"))
	g2.Release()
	assert.Equal(t, 0, r.videos.count("abc12345"))
}

func TestBroadcastAbortsOnFirstFailure(t *testing.T) {
	r, _ := newTestRegistry(t)

	s1, recv1 := NewSender()
	s2, _ := NewSender()
	s3, recv3 := NewSender()
	defer r.LinkSessionToVideo("abc12345", s1).Release()
	defer r.LinkSessionToVideo("abc12345", s2).Release()
	defer r.LinkSessionToVideo("abc12345", s3).Release()

	s2.Close()

	n, err := r.SendToVideoViewers("abc12345", []byte("partial"))
	assert.ErrorIs(t, err, ErrSenderClosed)
	assert.Equal(t, 0, n)

	// The first sender was reached before the abort; the third was not.
	assert.Equal(t, "partial", string(<-recv1))
	select {
	case msg := <-recv3:
		t.Fatalf("sender after the failed one received %q", msg)
	default:
	}
}

func TestCollabFirstJoinerBindsVideo(t *testing.T) {
	r, _ := newTestRegistry(t)

	s1, _ := NewSender()
	g1, err := r.LinkSessionToCollab("review-1", "abc12345", s1)
	require.NoError(t, err)
	defer g1.Release()

	s2, _ := NewSender()
	g2, err := r.LinkSessionToCollab("review-1", "abc12345", s2)
	require.NoError(t, err)
	defer g2.Release()

	s3, _ := NewSender()
	g3, err := r.LinkSessionToCollab("review-1", "otherhash", s3)
	assert.ErrorIs(t, err, ErrCollabVideoMismatch)
	assert.Nil(t, g3)
	assert.False(t, r.IsCollabParticipant("review-1", s3))
}

func TestCollabRebindsAfterLastParticipantLeaves(t *testing.T) {
	r, _ := newTestRegistry(t)

	s1, _ := NewSender()
	g1, err := r.LinkSessionToCollab("review-1", "abc12345", s1)
	require.NoError(t, err)
	g1.Release()

	// The stale binding is collected on the next join, so the collab id
	// can be reused for a different video.
	s2, _ := NewSender()
	g2, err := r.LinkSessionToCollab("review-1", "otherhash", s2)
	require.NoError(t, err)
	defer g2.Release()
}

func TestIsCollabParticipantTracksGuard(t *testing.T) {
	r, _ := newTestRegistry(t)

	s, _ := NewSender()
	assert.False(t, r.IsCollabParticipant("review-1", s))

	g, err := r.LinkSessionToCollab("review-1", "abc12345", s)
	require.NoError(t, err)
	assert.True(t, r.IsCollabParticipant("review-1", s))

	g.Release()
	assert.False(t, r.IsCollabParticipant("review-1", s))
}

func TestSendToCollabUsersEmptyIDIsNoop(t *testing.T) {
	r, terminate := newTestRegistry(t)

	n, err := r.SendToCollabUsers("", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Even during shutdown: nothing to do, nothing to refuse.
	terminate.Store(true)
	n, err = r.SendToCollabUsers("", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBroadcastsFailDuringShutdown(t *testing.T) {
	r, terminate := newTestRegistry(t)

	s, recv := NewSender()
	g := r.RegisterUserSession("alice", s)

	terminate.Store(true)

	_, err := r.SendToUserSessions("alice", []byte("x"))
	assert.ErrorIs(t, err, ErrShuttingDown)
	_, err = r.SendToVideoViewers("abc12345", []byte("x"))
	assert.ErrorIs(t, err, ErrShuttingDown)
	_, err = r.SendToCollabUsers("review-1", []byte("x"))
	assert.ErrorIs(t, err, ErrShuttingDown)

	// Deregistration still works so connections can unwind.
	g.Release()
	assert.Equal(t, 0, r.users.count("alice"))
	select {
	case msg := <-recv:
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func TestConcurrentRegisterReleaseBroadcast(t *testing.T) {
	r, _ := newTestRegistry(t)

	const workers = 16
	const rounds = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%4)
			for j := 0; j < rounds; j++ {
				s, recv := NewSender()
				g := r.RegisterUserSession(user, s)
				vg := r.LinkSessionToVideo("abc12345", s)
				_, _ = r.SendToUserSessions(user, []byte("ping"))
				_, _ = r.SendToVideoViewers("abc12345", []byte("ping"))
				vg.Release()
				g.Release()
				s.Close()
				// drain whatever arrived before release
				for {
					select {
					case <-recv:
						continue
					default:
					}
					break
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, r.users.keys())
	assert.Empty(t, r.videos.keys())
}
