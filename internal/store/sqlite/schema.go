package sqlite

// Schema is applied on startup; CREATE TABLE IF NOT EXISTS keeps restarts
// cheap without a migration tool.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id        TEXT PRIMARY KEY,
	username       TEXT NOT NULL UNIQUE,
	password_hash  TEXT NOT NULL,
	email          TEXT NOT NULL DEFAULT '',
	display_name   TEXT NOT NULL DEFAULT '',
	status_message TEXT NOT NULL DEFAULT '',
	avatar_url     TEXT NOT NULL DEFAULT '',
	online         INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	message_id  TEXT PRIMARY KEY,
	room_id     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	content     TEXT NOT NULL,
	reply_to_id TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '',
	timestamp   INTEGER NOT NULL,
	edited_at   INTEGER NOT NULL DEFAULT 0,
	is_deleted  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, timestamp);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	read_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (message_id, user_id)
);

CREATE TABLE IF NOT EXISTS rooms (
	room_id    TEXT PRIMARY KEY,
	room_name  TEXT NOT NULL,
	room_type  TEXT NOT NULL DEFAULT 'public',
	creator_id TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	role      TEXT NOT NULL DEFAULT 'member',
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS dm_conversations (
	conversation_id TEXT PRIMARY KEY,
	user1_id        TEXT NOT NULL,
	user2_id        TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user1_id, user2_id)
);

CREATE TABLE IF NOT EXISTS polls (
	poll_id    TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	question   TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	is_closed  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS poll_options (
	option_id  TEXT PRIMARY KEY,
	poll_id    TEXT NOT NULL,
	text       TEXT NOT NULL,
	opt_index  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS poll_votes (
	poll_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	username  TEXT NOT NULL,
	option_id TEXT NOT NULL,
	PRIMARY KEY (poll_id, user_id)
);

CREATE TABLE IF NOT EXISTS blocked_users (
	user_id    TEXT NOT NULL,
	blocked_id TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, blocked_id)
);
`
