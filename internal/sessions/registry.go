package sessions

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/azazel75/clapshot/internal/database"
	"github.com/azazel75/clapshot/internal/metrics"
)

// Registry holds all live connection bookkeeping plus the immutable per-process
// server state (storage paths, URL base, persistence handle, terminate flag).
// Construct one in main and share it by pointer with every component that
// registers connections or produces events; there are no package-level globals.
type Registry struct {
	users   *senderMap // user id -> connections of that user
	videos  *senderMap // video hash -> connections viewing that video
	collabs *senderMap // collab id -> connections in that collab session

	collabMu     sync.Mutex
	collabVideos map[string]string // collab id -> video hash, bound by first joiner

	db        *database.DB
	videosDir string
	uploadDir string
	urlBase   string
	terminate *atomic.Bool
}

// NewRegistry creates the registry. terminate is the process-wide shutdown
// flag: once set, broadcasts fail with ErrShuttingDown while deregistration
// keeps working so connections can still unwind cleanly.
func NewRegistry(db *database.DB, videosDir, uploadDir, urlBase string, terminate *atomic.Bool) *Registry {
	return &Registry{
		users:        newSenderMap("users"),
		videos:       newSenderMap("videos"),
		collabs:      newSenderMap("collabs"),
		collabVideos: make(map[string]string),
		db:           db,
		videosDir:    videosDir,
		uploadDir:    uploadDir,
		urlBase:      urlBase,
		terminate:    terminate,
	}
}

func (r *Registry) DB() *database.DB  { return r.db }
func (r *Registry) VideosDir() string { return r.videosDir }
func (r *Registry) UploadDir() string { return r.uploadDir }
func (r *Registry) URLBase() string   { return r.urlBase }

// RegisterUserSession registers sender as one of userID's live connections.
// One user can have any number of connections open at once.
func (r *Registry) RegisterUserSession(userID string, s Sender) *Guard {
	return r.users.insert(userID, s)
}

// LinkSessionToVideo registers sender as a viewer of videoHash. One video can
// have many viewers, including several connections of the same user.
func (r *Registry) LinkSessionToVideo(videoHash string, s Sender) *Guard {
	return r.videos.insert(videoHash, s)
}

// LinkSessionToCollab joins sender to the collab session collabID viewing
// videoHash. The first joiner of a collab binds it to the video; later joins
// must name the same video or they are rejected with ErrCollabVideoMismatch
// and nothing changes. Stale bindings of emptied-out collabs are collected
// here rather than by a background sweep, so the cost is O(table size) per
// join; any future change must keep the lock order of binding table first,
// collab map second.
func (r *Registry) LinkSessionToCollab(collabID, videoHash string, s Sender) (*Guard, error) {
	r.collabMu.Lock()
	defer r.collabMu.Unlock()

	for id := range r.collabVideos {
		if r.collabs.count(id) == 0 {
			delete(r.collabVideos, id)
			slog.Debug("Collected empty collab binding", "collab_id", id)
		}
	}

	if bound, ok := r.collabVideos[collabID]; !ok {
		r.collabVideos[collabID] = videoHash
		slog.Info("Collab created", "collab_id", collabID, "video_hash", videoHash)
	} else if bound != videoHash {
		metrics.CollabJoins.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("collab %q is bound to another video: %w", collabID, ErrCollabVideoMismatch)
	}

	metrics.CollabJoins.WithLabelValues("ok").Inc()
	return r.collabs.insert(collabID, s), nil
}

// IsCollabParticipant reports whether sender currently holds a membership in
// collabID. Used to authorize collab-scoped actions.
func (r *Registry) IsCollabParticipant(collabID string, s Sender) bool {
	return r.collabs.contains(collabID, s)
}

// SendToUserSessions enqueues msg to every connection userID has open and
// returns how many were reached.
func (r *Registry) SendToUserSessions(userID string, msg []byte) (int, error) {
	if r.terminate.Load() {
		return 0, ErrShuttingDown
	}
	return r.users.broadcast(userID, msg)
}

// SendToVideoViewers enqueues msg to every connection viewing videoHash and
// returns how many were reached.
func (r *Registry) SendToVideoViewers(videoHash string, msg []byte) (int, error) {
	if r.terminate.Load() {
		return 0, ErrShuttingDown
	}
	return r.videos.broadcast(videoHash, msg)
}

// SendToCollabUsers enqueues msg to every participant of collabID. An empty
// collabID means the caller's connection has no active collab; that is a
// no-op reported as zero receivers.
func (r *Registry) SendToCollabUsers(collabID string, msg []byte) (int, error) {
	if collabID == "" {
		return 0, nil
	}
	if r.terminate.Load() {
		return 0, ErrShuttingDown
	}
	return r.collabs.broadcast(collabID, msg)
}
