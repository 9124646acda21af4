// Package app is the application layer: it turns pipeline results into
// persisted state and client notifications, and owns periodic housekeeping.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/azazel75/clapshot/internal/database"
	"github.com/azazel75/clapshot/internal/domain"
	"github.com/azazel75/clapshot/internal/logging"
	"github.com/azazel75/clapshot/internal/metrics"
	"github.com/azazel75/clapshot/internal/pipeline/metadata"
	"github.com/azazel75/clapshot/internal/sessions"
)

const (
	cleanupInterval = 10 * time.Minute
	orphanMaxAge    = 2 * time.Hour
)

// Service consumes metadata pipeline results: on success it moves the file
// into the video store, records it and notifies the owner; on failure it
// moves the file aside and notifies the owner of the error. It also sweeps
// abandoned upload staging directories on a timer.
type Service struct {
	db        *database.DB
	registry  *sessions.Registry
	rejectDir string
	clock     clockwork.Clock

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates the service and starts the upload staging cleanup timer.
func NewService(db *database.DB, registry *sessions.Registry, rejectDir string, clock clockwork.Clock) *Service {
	s := &Service{
		db:        db,
		registry:  registry,
		rejectDir: rejectDir,
		clock:     clock,
		stopCh:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	return s
}

// Stop halts the cleanup timer. Safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Run consumes pipeline results until the channel closes.
func (s *Service) Run(ctx context.Context, results <-chan metadata.Result) {
	for res := range results {
		s.handleResult(ctx, res)
	}
	slog.Info("Ingest service exiting, results channel closed")
}

func (s *Service) handleResult(ctx context.Context, res metadata.Result) {
	if res.Err != nil {
		s.handleFailed(ctx, res.Err)
		return
	}
	s.ingestVideo(ctx, res.Metadata)
}

func (s *Service) handleFailed(ctx context.Context, derr *metadata.DetailedError) {
	metrics.IngestedVideos.WithLabelValues("failed").Inc()

	if err := s.moveToRejected(derr.SrcFile); err != nil {
		logging.WithUser(derr.UserID).Error("Failed to move rejected file aside",
			"file", derr.SrcFile, "error", err)
	}

	s.PushUserMessage(ctx, &domain.UserMessage{
		UserID:  derr.UserID,
		Event:   domain.EventError,
		Message: derr.Msg,
		Details: fmt.Sprintf("%s (file: %s)", derr.Details, filepath.Base(derr.SrcFile)),
	}, true)
}

func (s *Service) ingestVideo(ctx context.Context, md *metadata.Metadata) {
	log := logging.WithUser(md.UserID)

	videoHash, err := calcVideoHash(md.SrcFile, md.UserID)
	if err != nil {
		s.failIngest(ctx, md, "", fmt.Errorf("hashing upload: %w", err))
		return
	}
	log = log.With("video_hash", videoHash)

	newDir := filepath.Join(s.registry.VideosDir(), videoHash)
	if _, err := os.Stat(newDir); err == nil {
		done, err := s.handleExistingDir(ctx, md, videoHash, newDir)
		if err != nil {
			s.failIngest(ctx, md, videoHash, err)
			return
		}
		if done {
			return
		}
	}

	origDir := filepath.Join(newDir, "orig")
	if err := os.MkdirAll(origDir, 0o755); err != nil {
		s.failIngest(ctx, md, videoHash, fmt.Errorf("creating video dir: %w", err))
		return
	}
	dst := filepath.Join(origDir, filepath.Base(md.SrcFile))
	if err := moveFile(md.SrcFile, dst); err != nil {
		s.failIngest(ctx, md, videoHash, fmt.Errorf("moving upload into store: %w", err))
		return
	}

	video := &domain.Video{
		VideoHash:       videoHash,
		AddedByUserID:   md.UserID,
		AddedByUsername: md.UserID,
		OrigFilename:    filepath.Base(md.SrcFile),
		TotalFrames:     md.TotalFrames,
		Duration:        md.Duration,
		FPS:             md.FPSString(),
		RawMetadataAll:  md.RawAll,
	}
	if _, err := s.db.AddVideo(ctx, video); err != nil {
		s.failIngest(ctx, md, videoHash, fmt.Errorf("writing video to database: %w", err))
		return
	}

	metrics.IngestedVideos.WithLabelValues("ok").Inc()
	log.Info("Video ingested", "file", video.OrigFilename, "duration", video.Duration)

	s.PushUserMessage(ctx, &domain.UserMessage{
		UserID:       md.UserID,
		Event:        domain.EventNewVideo,
		RefVideoHash: videoHash,
		Message:      "Video added.",
	}, true)
}

// handleExistingDir resolves an upload whose target directory already exists.
// Returns done=true when the upload was fully handled (duplicate upload by
// the same owner).
func (s *Service) handleExistingDir(ctx context.Context, md *metadata.Metadata, videoHash, newDir string) (bool, error) {
	prev, err := s.db.GetVideo(ctx, videoHash)
	if err == nil {
		if prev.AddedByUserID != md.UserID {
			return false, fmt.Errorf("hash collision: video %q already owned by %q", videoHash, prev.AddedByUserID)
		}
		// Same user re-uploading the same video. That is fine.
		if err := os.Remove(md.SrcFile); err != nil {
			slog.Warn("Failed to remove duplicate upload", "file", md.SrcFile, "error", err)
		}
		metrics.IngestedVideos.WithLabelValues("duplicate").Inc()
		s.PushUserMessage(ctx, &domain.UserMessage{
			UserID:       md.UserID,
			Event:        domain.EventOK,
			RefVideoHash: videoHash,
			Message:      "You already have this video.",
		}, true)
		return true, nil
	}

	// Directory exists without a database row: leftover from an earlier
	// failed run. Clear it and reprocess.
	slog.Warn("Video dir exists but not in database, reprocessing", "video_hash", videoHash)
	return false, os.RemoveAll(newDir)
}

func (s *Service) failIngest(ctx context.Context, md *metadata.Metadata, videoHash string, cause error) {
	metrics.IngestedVideos.WithLabelValues("failed").Inc()
	logging.WithUser(md.UserID).Error("Video ingesting failed", "file", md.SrcFile, "error", cause)

	msg := "Video ingesting failed."
	if err := s.moveToRejected(md.SrcFile); err != nil && !os.IsNotExist(err) {
		slog.Error("Cleanup of failed ingest also failed", "file", md.SrcFile, "error", err)
		msg += " Cleanup failed also."
	}

	s.PushUserMessage(ctx, &domain.UserMessage{
		UserID:       md.UserID,
		Event:        domain.EventError,
		RefVideoHash: videoHash,
		Message:      msg,
		Details:      cause.Error(),
	}, true)
}

// PushUserMessage optionally persists msg and broadcasts it to every
// connection the user currently has open. Broadcast failures are logged, not
// returned: a slow or closed connection must not fail the producer.
func (s *Service) PushUserMessage(ctx context.Context, msg *domain.UserMessage, persist bool) {
	if persist {
		if err := s.db.AddMessage(ctx, msg); err != nil {
			logging.WithUser(msg.UserID).Error("Failed to persist user message", "error", err)
		}
	}

	raw, err := domain.MarshalEvent("message", msg)
	if err != nil {
		slog.Error("Failed to marshal user message", "error", err)
		return
	}
	if _, err := s.registry.SendToUserSessions(msg.UserID, raw); err != nil {
		logging.WithUser(msg.UserID).Warn("User message broadcast failed", "error", err)
	}
}

func (s *Service) moveToRejected(src string) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}
	if err := os.MkdirAll(s.rejectDir, 0o755); err != nil {
		return err
	}
	return moveFile(src, filepath.Join(s.rejectDir, filepath.Base(src)))
}

// cleanupLoop removes upload staging directories that never made it through
// the pipeline, so interrupted uploads do not accumulate.
func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.cleanupOrphanUploads()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Service) cleanupOrphanUploads() {
	uploadDir := s.registry.UploadDir()
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		slog.Warn("Upload dir scan failed", "dir", uploadDir, "error", err)
		return
	}

	cutoff := s.clock.Now().Add(-orphanMaxAge)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(uploadDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to remove orphan upload", "path", path, "error", err)
		} else {
			slog.Info("Removed orphan upload", "path", path)
		}
	}
}
