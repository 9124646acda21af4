// Package domain holds the persistent model types shared by storage,
// transport and the application layer.
package domain

import "time"

// Video is one submitted video file and the technical metadata extracted
// from it. FPS is kept as a string so values like "23.976" survive
// round-tripping without float formatting drift.
type Video struct {
	ID                int64      `json:"-"`
	VideoHash         string     `json:"video_hash"`
	AddedByUserID     string     `json:"added_by_userid"`
	AddedByUsername   string     `json:"added_by_username"`
	AddedTime         time.Time  `json:"added_time"`
	RecompressionDone *time.Time `json:"recompression_done,omitempty"`
	OrigFilename      string     `json:"orig_filename"`
	TotalFrames       int        `json:"total_frames"`
	Duration          float64    `json:"duration"`
	FPS               string     `json:"fps"`
	RawMetadataAll    string     `json:"-"`
}

// Comment is a (possibly threaded) user comment on a video. Timecode points
// to a video position, Drawing references an annotation image stored next to
// the video.
type Comment struct {
	ID        int64      `json:"comment_id"`
	VideoHash string     `json:"video_hash"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	Created   time.Time  `json:"created"`
	Edited    *time.Time `json:"edited,omitempty"`
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Comment   string     `json:"comment"`
	Timecode  string     `json:"timecode,omitempty"`
	Drawing   string     `json:"drawing,omitempty"`
}

// UserMessage is a server-generated notification for one user, optionally
// persisted so it survives until the user next connects.
type UserMessage struct {
	ID           int64     `json:"id,omitempty"`
	UserID       string    `json:"user_id"`
	Created      time.Time `json:"created,omitempty"`
	Seen         bool      `json:"seen"`
	RefVideoHash string    `json:"ref_video_hash,omitempty"`
	RefCommentID *int64    `json:"ref_comment_id,omitempty"`
	Event        string    `json:"event_name"`
	Message      string    `json:"message"`
	Details      string    `json:"details,omitempty"`
}

// Message event names.
const (
	EventOK       = "ok"
	EventError    = "error"
	EventProgress = "progress"
	EventNewVideo = "new_video"
)
