package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/azazel75/clapshot/internal/apperrors"
	"github.com/azazel75/clapshot/internal/domain"
)

// AddVideo inserts a new video row and returns its id.
func (d *DB) AddVideo(ctx context.Context, v *domain.Video) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO videos (video_hash, added_by_userid, added_by_username,
			orig_filename, total_frames, duration, fps, raw_metadata_all)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VideoHash, v.AddedByUserID, v.AddedByUsername,
		v.OrigFilename, v.TotalFrames, v.Duration, v.FPS, v.RawMetadataAll)
	if err != nil {
		return 0, fmt.Errorf("insert video %q: %w", v.VideoHash, err)
	}
	return res.LastInsertId()
}

// GetVideo returns the video with the given hash, or a not-found error.
func (d *DB) GetVideo(ctx context.Context, videoHash string) (*domain.Video, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, video_hash, added_by_userid, added_by_username, added_time,
			recompression_done, orig_filename, total_frames, duration, fps, raw_metadata_all
		FROM videos WHERE video_hash = ?`, videoHash)

	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundError("no such video").WithContext("video_hash", videoHash)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %q: %w", videoHash, err)
	}
	return v, nil
}

// GetAllUserVideos returns the videos added by userID, newest first.
func (d *DB) GetAllUserVideos(ctx context.Context, userID string) ([]*domain.Video, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, video_hash, added_by_userid, added_by_username, added_time,
			recompression_done, orig_filename, total_frames, duration, fps, raw_metadata_all
		FROM videos WHERE added_by_userid = ? ORDER BY added_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list videos for user %q: %w", userID, err)
	}
	defer rows.Close()

	var videos []*domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// SetVideoRecompressed marks the video's transcoded rendition as ready.
func (d *DB) SetVideoRecompressed(ctx context.Context, videoHash string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE videos SET recompression_done = CURRENT_TIMESTAMP WHERE video_hash = ?`, videoHash)
	if err != nil {
		return fmt.Errorf("mark video %q recompressed: %w", videoHash, err)
	}
	return nil
}

// DelVideoAndComments removes a video row and, through the cascade, all its
// comments.
func (d *DB) DelVideoAndComments(ctx context.Context, videoHash string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM videos WHERE video_hash = ?`, videoHash)
	if err != nil {
		return fmt.Errorf("delete video %q: %w", videoHash, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(r rowScanner) (*domain.Video, error) {
	var v domain.Video
	var recompressed sql.NullTime
	err := r.Scan(&v.ID, &v.VideoHash, &v.AddedByUserID, &v.AddedByUsername, &v.AddedTime,
		&recompressed, &v.OrigFilename, &v.TotalFrames, &v.Duration, &v.FPS, &v.RawMetadataAll)
	if err != nil {
		return nil, err
	}
	if recompressed.Valid {
		v.RecompressionDone = &recompressed.Time
	}
	return &v, nil
}
