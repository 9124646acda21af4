package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/azazel75/clapshot/internal/domain"
	"github.com/azazel75/clapshot/internal/sessions"
)

const commandTimeout = 10 * time.Second

// connSession is the per-connection command state: the registrations the
// connection currently holds and the collab it is part of, if any.
type connSession struct {
	h        *Handler
	sender   sessions.Sender
	userID   string
	username string

	videoHash  string
	videoGuard *sessions.Guard

	collabID    string
	collabGuard *sessions.Guard

	log *slog.Logger
}

// releaseAll drops every registration except the user session, whose guard
// the handler holds directly.
func (cs *connSession) releaseAll() {
	cs.videoGuard.Release()
	cs.collabGuard.Release()
}

func (cs *connSession) dispatch(env domain.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch env.Type {
	case "list_my_videos":
		cs.listMyVideos(ctx)
	case "open_video":
		cs.openVideo(ctx, env.Data)
	case "close_video":
		cs.closeVideo()
	case "del_video":
		cs.delVideo(ctx, env.Data)
	case "add_comment":
		cs.addComment(ctx, env.Data)
	case "edit_comment":
		cs.editComment(ctx, env.Data)
	case "del_comment":
		cs.delComment(ctx, env.Data)
	case "list_my_messages":
		cs.listMyMessages(ctx)
	case "join_collab":
		cs.joinCollab(env.Data)
	case "leave_collab":
		cs.leaveCollab()
	case "collab_report":
		cs.collabReport(env.Data)
	default:
		cs.pushError("Unknown command.", env.Type, "")
	}
}

// emit sends one event to this connection only. Failures mean the connection
// is going away; they are logged and otherwise ignored.
func (cs *connSession) emit(eventType string, data any) {
	raw, err := domain.MarshalEvent(eventType, data)
	if err != nil {
		cs.log.Error("Failed to marshal event", "type", eventType, "error", err)
		return
	}
	if err := cs.sender.Send(raw); err != nil {
		cs.log.Warn("Emit failed", "type", eventType, "error", err)
	}
}

// pushError sends a non-persisted error message to this connection.
func (cs *connSession) pushError(message, details, refVideoHash string) {
	cs.emit("message", &domain.UserMessage{
		UserID:       cs.userID,
		Event:        domain.EventError,
		Message:      message,
		Details:      details,
		RefVideoHash: refVideoHash,
	})
}

func (cs *connSession) listMyVideos(ctx context.Context) {
	videos, err := cs.h.registry.DB().GetAllUserVideos(ctx, cs.userID)
	if err != nil {
		cs.log.Error("list_my_videos failed", "error", err)
		cs.pushError("Failed to list your videos.", err.Error(), "")
		return
	}

	fields := make([]map[string]any, 0, len(videos))
	for _, v := range videos {
		fields = append(fields, cs.videoFields(v))
	}
	cs.emit("user_videos", map[string]any{
		"user_id":  cs.userID,
		"username": cs.username,
		"videos":   fields,
	})
}

func (cs *connSession) openVideo(ctx context.Context, data json.RawMessage) {
	var req struct {
		VideoHash string `json:"video_hash"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.VideoHash == "" {
		cs.pushError("Malformed request.", "video_hash required", "")
		return
	}

	v, err := cs.h.registry.DB().GetVideo(ctx, req.VideoHash)
	if err != nil {
		cs.pushError("No such video.", "", req.VideoHash)
		return
	}

	// Opening another video replaces the previous viewing registration.
	cs.videoGuard.Release()
	cs.videoGuard = cs.h.registry.LinkSessionToVideo(req.VideoHash, cs.sender)
	cs.videoHash = req.VideoHash

	cs.emit("open_video", cs.videoFields(v))

	comments, err := cs.h.registry.DB().GetVideoComments(ctx, req.VideoHash)
	if err != nil {
		cs.log.Error("Failed to load comments", "video_hash", req.VideoHash, "error", err)
		cs.pushError("Failed to load comments.", err.Error(), req.VideoHash)
		return
	}
	for _, c := range comments {
		cs.emit("new_comment", c)
	}
}

func (cs *connSession) closeVideo() {
	cs.videoGuard.Release()
	cs.videoGuard = nil
	cs.videoHash = ""
	// Leaving the video also leaves any collab bound to it.
	cs.leaveCollab()
}

func (cs *connSession) delVideo(ctx context.Context, data json.RawMessage) {
	var req struct {
		VideoHash string `json:"video_hash"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.VideoHash == "" {
		cs.pushError("Malformed request.", "video_hash required", "")
		return
	}

	v, err := cs.h.registry.DB().GetVideo(ctx, req.VideoHash)
	if err != nil {
		cs.pushError("No such video. Cannot delete.", "", req.VideoHash)
		return
	}
	if cs.userID != v.AddedByUserID && cs.userID != "admin" {
		cs.pushError("Video not owned by you. Cannot delete.", "", req.VideoHash)
		return
	}

	if err := cs.h.registry.DB().DelVideoAndComments(ctx, req.VideoHash); err != nil {
		cs.log.Error("del_video failed", "video_hash", req.VideoHash, "error", err)
		cs.pushError("Failed to delete video.", err.Error(), req.VideoHash)
		return
	}

	cs.h.svc.PushUserMessage(ctx, &domain.UserMessage{
		UserID:       cs.userID,
		Event:        domain.EventOK,
		RefVideoHash: req.VideoHash,
		Message:      "Video deleted.",
		Details:      "Filename was '" + v.OrigFilename + "'",
	}, true)
}

func (cs *connSession) addComment(ctx context.Context, data json.RawMessage) {
	var req struct {
		VideoHash string `json:"video_hash"`
		ParentID  *int64 `json:"parent_id"`
		Comment   string `json:"comment"`
		Timecode  string `json:"timecode"`
		Drawing   string `json:"drawing"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.VideoHash == "" {
		cs.pushError("Malformed request.", "video_hash required", "")
		return
	}

	if _, err := cs.h.registry.DB().GetVideo(ctx, req.VideoHash); err != nil {
		cs.pushError("No such video. Cannot comment.", "", req.VideoHash)
		return
	}

	c := &domain.Comment{
		VideoHash: req.VideoHash,
		ParentID:  req.ParentID,
		UserID:    cs.userID,
		Username:  cs.username,
		Comment:   req.Comment,
		Timecode:  req.Timecode,
		Drawing:   req.Drawing,
	}
	if err := cs.h.registry.DB().AddComment(ctx, c); err != nil {
		cs.log.Error("add_comment failed", "video_hash", req.VideoHash, "error", err)
		cs.pushError("Failed to add comment.", err.Error(), req.VideoHash)
		return
	}

	cs.broadcastToVideo(req.VideoHash, "new_comment", c)
}

func (cs *connSession) editComment(ctx context.Context, data json.RawMessage) {
	var req struct {
		CommentID int64  `json:"comment_id"`
		Comment   string `json:"comment"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.CommentID == 0 {
		cs.pushError("Malformed request.", "comment_id required", "")
		return
	}

	old, err := cs.h.registry.DB().GetComment(ctx, req.CommentID)
	if err != nil {
		cs.pushError("No such comment. Cannot edit.", "", "")
		return
	}
	if cs.userID != old.UserID && cs.userID != "admin" {
		cs.pushError("You can only edit your own comments.", "", old.VideoHash)
		return
	}

	if err := cs.h.registry.DB().EditComment(ctx, req.CommentID, req.Comment); err != nil {
		cs.log.Error("edit_comment failed", "comment_id", req.CommentID, "error", err)
		cs.pushError("Failed to edit comment.", err.Error(), old.VideoHash)
		return
	}

	updated, err := cs.h.registry.DB().GetComment(ctx, req.CommentID)
	if err != nil {
		cs.log.Error("Failed to re-read edited comment", "comment_id", req.CommentID, "error", err)
		return
	}
	cs.broadcastToVideo(old.VideoHash, "del_comment", map[string]int64{"comment_id": req.CommentID})
	cs.broadcastToVideo(old.VideoHash, "new_comment", updated)
}

func (cs *connSession) delComment(ctx context.Context, data json.RawMessage) {
	var req struct {
		CommentID int64 `json:"comment_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.CommentID == 0 {
		cs.pushError("Malformed request.", "comment_id required", "")
		return
	}

	old, err := cs.h.registry.DB().GetComment(ctx, req.CommentID)
	if err != nil {
		cs.pushError("No such comment. Cannot delete.", "", "")
		return
	}
	if cs.userID != old.UserID && cs.userID != "admin" {
		cs.pushError("You can only delete your own comments.", "", old.VideoHash)
		return
	}

	all, err := cs.h.registry.DB().GetVideoComments(ctx, old.VideoHash)
	if err == nil {
		for _, c := range all {
			if c.ParentID != nil && *c.ParentID == req.CommentID {
				cs.pushError("Can't delete a comment that has replies.", "", old.VideoHash)
				return
			}
		}
	}

	if err := cs.h.registry.DB().DelComment(ctx, req.CommentID); err != nil {
		cs.log.Error("del_comment failed", "comment_id", req.CommentID, "error", err)
		cs.pushError("Failed to delete comment.", err.Error(), old.VideoHash)
		return
	}
	cs.broadcastToVideo(old.VideoHash, "del_comment", map[string]int64{"comment_id": req.CommentID})
}

func (cs *connSession) listMyMessages(ctx context.Context) {
	msgs, err := cs.h.registry.DB().GetUserMessages(ctx, cs.userID)
	if err != nil {
		cs.log.Error("list_my_messages failed", "error", err)
		cs.pushError("Failed to get messages.", err.Error(), "")
		return
	}
	for _, m := range msgs {
		cs.emit("message", m)
		if !m.Seen {
			if err := cs.h.registry.DB().SetMessageSeen(ctx, m.ID, true); err != nil {
				cs.log.Warn("Failed to mark message seen", "message_id", m.ID, "error", err)
			}
		}
	}
}

func (cs *connSession) joinCollab(data json.RawMessage) {
	var req struct {
		CollabID  string `json:"collab_id"`
		VideoHash string `json:"video_hash"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.CollabID == "" || req.VideoHash == "" {
		cs.pushError("Malformed request.", "collab_id and video_hash required", "")
		return
	}

	// Re-joining replaces the previous collab membership.
	cs.leaveCollab()

	guard, err := cs.h.registry.LinkSessionToCollab(req.CollabID, req.VideoHash, cs.sender)
	if err != nil {
		if errors.Is(err, sessions.ErrCollabVideoMismatch) {
			// Permanent rejection for this (collab, video) pair, distinct
			// from transient failures: the client should not retry.
			cs.pushError("Wrong video for this collab session.", err.Error(), req.VideoHash)
		} else {
			cs.pushError("Failed to join collab session.", err.Error(), req.VideoHash)
		}
		return
	}
	cs.collabGuard = guard
	cs.collabID = req.CollabID
	cs.log.Info("Joined collab", "collab_id", req.CollabID, "video_hash", req.VideoHash)

	cs.emit("collab_joined", map[string]string{
		"collab_id":  req.CollabID,
		"video_hash": req.VideoHash,
	})
}

func (cs *connSession) leaveCollab() {
	if cs.collabGuard == nil {
		return
	}
	cs.collabGuard.Release()
	cs.collabGuard = nil
	cs.log.Info("Left collab", "collab_id", cs.collabID)
	cs.collabID = ""
}

// collabReport relays a playback state report (position, play/pause, seek) to
// every participant of the connection's collab session.
func (cs *connSession) collabReport(data json.RawMessage) {
	if cs.collabID == "" {
		// Tolerated: connections without an active collab report into the void.
		return
	}
	if !cs.h.registry.IsCollabParticipant(cs.collabID, cs.sender) {
		cs.pushError("Not a participant of this collab session.", cs.collabID, "")
		return
	}

	report := map[string]any{
		"from_user": cs.userID,
		"username":  cs.username,
		"report":    data,
	}
	raw, err := domain.MarshalEvent("collab_cmd", report)
	if err != nil {
		cs.log.Error("Failed to marshal collab report", "error", err)
		return
	}
	if _, err := cs.h.registry.SendToCollabUsers(cs.collabID, raw); err != nil {
		cs.log.Warn("Collab broadcast failed", "collab_id", cs.collabID, "error", err)
	}
}

func (cs *connSession) broadcastToVideo(videoHash, eventType string, data any) {
	raw, err := domain.MarshalEvent(eventType, data)
	if err != nil {
		cs.log.Error("Failed to marshal event", "type", eventType, "error", err)
		return
	}
	if _, err := cs.h.registry.SendToVideoViewers(videoHash, raw); err != nil {
		cs.log.Warn("Video broadcast failed", "video_hash", videoHash, "error", err)
	}
}

// videoFields is the client-facing representation of a video, including the
// playback URL: the transcoded rendition when ready, the original otherwise.
func (cs *connSession) videoFields(v *domain.Video) map[string]any {
	base := strings.TrimRight(cs.h.registry.URLBase(), "/")
	var videoURL string
	if v.RecompressionDone != nil {
		videoURL = base + "/video/" + v.VideoHash + "/video.mp4"
	} else {
		videoURL = base + "/video/" + v.VideoHash + "/orig/" + url.PathEscape(v.OrigFilename)
	}

	return map[string]any{
		"video_hash":    v.VideoHash,
		"orig_filename": v.OrigFilename,
		"video_url":     videoURL,
		"fps":           v.FPS,
		"duration":      v.Duration,
		"added_time":    v.AddedTime.Format(time.RFC3339),
		"user_id":       v.AddedByUserID,
		"username":      v.AddedByUsername,
	}
}
