package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/azazel75/clapshot/internal/domain"
)

// AddMessage persists a user message and fills in its generated id and
// timestamp.
func (d *DB) AddMessage(ctx context.Context, m *domain.UserMessage) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, seen, ref_video_hash, ref_comment_id, event_name, message, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.Seen, nullIfEmpty(m.RefVideoHash), m.RefCommentID, m.Event, m.Message, m.Details)
	if err != nil {
		return fmt.Errorf("insert message for user %q: %w", m.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id

	row := d.db.QueryRowContext(ctx, `SELECT created FROM messages WHERE id = ?`, id)
	return row.Scan(&m.Created)
}

// GetUserMessages returns all stored messages for a user, oldest first.
func (d *DB) GetUserMessages(ctx context.Context, userID string) ([]*domain.UserMessage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, created, seen, ref_video_hash, ref_comment_id, event_name, message, details
		FROM messages WHERE user_id = ? ORDER BY created, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages for user %q: %w", userID, err)
	}
	defer rows.Close()

	var msgs []*domain.UserMessage
	for rows.Next() {
		var m domain.UserMessage
		var refVideo sql.NullString
		var refComment sql.NullInt64
		err := rows.Scan(&m.ID, &m.UserID, &m.Created, &m.Seen,
			&refVideo, &refComment, &m.Event, &m.Message, &m.Details)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.RefVideoHash = refVideo.String
		if refComment.Valid {
			m.RefCommentID = &refComment.Int64
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// SetMessageSeen marks a message read or unread.
func (d *DB) SetMessageSeen(ctx context.Context, id int64, seen bool) error {
	_, err := d.db.ExecContext(ctx, `UPDATE messages SET seen = ? WHERE id = ?`, seen, id)
	if err != nil {
		return fmt.Errorf("set message %d seen=%t: %w", id, seen, err)
	}
	return nil
}
