package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/azazel75/clapshot/internal/apperrors"
	"github.com/azazel75/clapshot/internal/domain"
)

// AddComment inserts a comment and fills in its generated id and timestamp.
func (d *DB) AddComment(ctx context.Context, c *domain.Comment) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO comments (video_hash, parent_id, user_id, username, comment, timecode, drawing)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.VideoHash, c.ParentID, c.UserID, c.Username, c.Comment,
		nullIfEmpty(c.Timecode), nullIfEmpty(c.Drawing))
	if err != nil {
		return fmt.Errorf("insert comment on %q: %w", c.VideoHash, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := d.GetComment(ctx, id)
	if err != nil {
		return err
	}
	*c = *stored
	return nil
}

// GetComment returns one comment by id, or a not-found error.
func (d *DB) GetComment(ctx context.Context, id int64) (*domain.Comment, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, video_hash, parent_id, created, edited, user_id, username, comment, timecode, drawing
		FROM comments WHERE id = ?`, id)

	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundError("no such comment").WithContext("comment_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	return c, nil
}

// EditComment replaces a comment's text and stamps it edited.
func (d *DB) EditComment(ctx context.Context, id int64, comment string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE comments SET comment = ?, edited = CURRENT_TIMESTAMP WHERE id = ?`, comment, id)
	if err != nil {
		return fmt.Errorf("edit comment %d: %w", id, err)
	}
	return nil
}

// DelComment removes one comment.
func (d *DB) DelComment(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	return nil
}

// GetVideoComments returns all comments on a video, oldest first.
func (d *DB) GetVideoComments(ctx context.Context, videoHash string) ([]*domain.Comment, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, video_hash, parent_id, created, edited, user_id, username, comment, timecode, drawing
		FROM comments WHERE video_hash = ? ORDER BY created, id`, videoHash)
	if err != nil {
		return nil, fmt.Errorf("list comments for %q: %w", videoHash, err)
	}
	defer rows.Close()

	var comments []*domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func scanComment(r rowScanner) (*domain.Comment, error) {
	var c domain.Comment
	var parent sql.NullInt64
	var edited sql.NullTime
	var timecode, drawing sql.NullString
	err := r.Scan(&c.ID, &c.VideoHash, &parent, &c.Created, &edited,
		&c.UserID, &c.Username, &c.Comment, &timecode, &drawing)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	if edited.Valid {
		c.Edited = &edited.Time
	}
	c.Timecode = timecode.String
	c.Drawing = drawing.String
	return &c, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
