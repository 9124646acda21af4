package database

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	video_hash         TEXT NOT NULL UNIQUE,
	added_by_userid    TEXT NOT NULL,
	added_by_username  TEXT NOT NULL DEFAULT '',
	added_time         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	recompression_done DATETIME,
	orig_filename      TEXT NOT NULL DEFAULT '',
	total_frames       INTEGER NOT NULL DEFAULT 0,
	duration           REAL NOT NULL DEFAULT 0,
	fps                TEXT NOT NULL DEFAULT '',
	raw_metadata_all   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_videos_owner ON videos(added_by_userid);

CREATE TABLE IF NOT EXISTS comments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	video_hash TEXT NOT NULL REFERENCES videos(video_hash) ON DELETE CASCADE,
	parent_id  INTEGER REFERENCES comments(id),
	created    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	edited     DATETIME,
	user_id    TEXT NOT NULL DEFAULT 'anonymous',
	username   TEXT NOT NULL DEFAULT 'Anonymous',
	comment    TEXT NOT NULL DEFAULT '',
	timecode   TEXT,
	drawing    TEXT
);
CREATE INDEX IF NOT EXISTS idx_comments_video ON comments(video_hash);
CREATE INDEX IF NOT EXISTS idx_comments_parent ON comments(parent_id);

CREATE TABLE IF NOT EXISTS messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        TEXT NOT NULL,
	created        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	seen           INTEGER NOT NULL DEFAULT 0,
	ref_video_hash TEXT,
	ref_comment_id INTEGER,
	event_name     TEXT NOT NULL,
	message        TEXT NOT NULL DEFAULT '',
	details        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);
`
