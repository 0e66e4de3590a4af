// Package sqlite implements store.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chatbox-im/chatbox-server/internal/dm"
	"github.com/chatbox-im/chatbox-server/internal/store"
)

// Store implements store.Store for SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==== UserStore ====

func (s *Store) CreateUser(ctx context.Context, username, passwordHash, email string) (*store.User, error) {
	userID := "u-" + uuid.NewString()[:8]

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, password_hash, email)
		VALUES (?, ?, ?, ?)`,
		userID, username, passwordHash, email)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, userID)
}

const userColumns = `user_id, username, password_hash, email, display_name, status_message, avatar_url, online, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.Email,
		&u.DisplayName, &u.StatusMessage, &u.AvatarURL, &u.Online, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserStatus(ctx context.Context, userID string, online bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET online = ? WHERE user_id = ?`, online, userID)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID, displayName, statusMessage, avatarURL string) error {
	// Empty display name / avatar keep the previous value; status message is
	// replaced as sent (clearing it is legitimate).
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			display_name   = COALESCE(NULLIF(?, ''), display_name),
			status_message = ?,
			avatar_url     = COALESCE(NULLIF(?, ''), avatar_url)
		WHERE user_id = ?`,
		displayName, statusMessage, avatarURL, userID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE user_id = ?`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== MessageStore ====

// SaveMessage upserts by message id. The live path performs no dedup and ids
// come from a one-second clock, so replays must succeed.
func (s *Store) SaveMessage(ctx context.Context, msg *store.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, room_id, sender_id, sender_name, content, reply_to_id, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata`,
		msg.MessageID, msg.RoomID, msg.SenderID, msg.SenderName,
		msg.Content, msg.ReplyToID, msg.Metadata, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

const messageColumns = `message_id, room_id, sender_id, sender_name, content, reply_to_id, metadata, timestamp, edited_at, is_deleted`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var m store.Message
	err := row.Scan(&m.MessageID, &m.RoomID, &m.SenderID, &m.SenderName,
		&m.Content, &m.ReplyToID, &m.Metadata, &m.Timestamp, &m.EditedAt, &m.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &m, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID)
	return scanMessage(row)
}

func (s *Store) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE room_id = ? AND is_deleted = 0
		ORDER BY timestamp DESC, message_id DESC
		LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) SearchMessages(ctx context.Context, query, roomID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE is_deleted = 0 AND content LIKE ?`
	args := []any{"%" + query + "%"}
	if roomID != "" {
		sqlQuery += ` AND room_id = ?`
		args = append(args, roomID)
	}
	sqlQuery += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) EditMessage(ctx context.Context, messageID, senderID, newContent string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, edited_at = strftime('%s', 'now')
		WHERE message_id = ? AND sender_id = ?`,
		newContent, messageID, senderID)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = 1 WHERE message_id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (s *Store) MarkRead(ctx context.Context, messageID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id)
		VALUES (?, ?)
		ON CONFLICT(message_id, user_id) DO UPDATE SET read_at = CURRENT_TIMESTAMP`,
		messageID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// ==== RoomStore ====

func (s *Store) CreateRoom(ctx context.Context, room *store.Room) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, room_name, room_type, creator_id)
		VALUES (?, ?, ?, ?)`,
		room.RoomID, room.Name, room.RoomType, room.CreatorID)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*store.Room, error) {
	var r store.Room
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, room_name, room_type, creator_id, created_at
		FROM rooms WHERE room_id = ?`, roomID).
		Scan(&r.RoomID, &r.Name, &r.RoomType, &r.CreatorID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &r, nil
}

func (s *Store) ListUserRooms(ctx context.Context, userID string) ([]*store.RoomMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.room_id, r.room_name, r.room_type, r.creator_id, r.created_at, rm.role
		FROM rooms r
		JOIN room_members rm ON r.room_id = rm.room_id
		WHERE rm.user_id = ?
		ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user rooms: %w", err)
	}
	defer rows.Close()

	var out []*store.RoomMembership
	for rows.Next() {
		var m store.RoomMembership
		if err := rows.Scan(&m.Room.RoomID, &m.Room.Name, &m.Room.RoomType,
			&m.Room.CreatorID, &m.Room.CreatedAt, &m.Role); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) AddRoomMember(ctx context.Context, roomID, userID, role string) error {
	if role == "" {
		role = store.RoleMember
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_members (room_id, user_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT(room_id, user_id) DO NOTHING`,
		roomID, userID, role)
	if err != nil {
		return fmt.Errorf("add room member: %w", err)
	}
	return nil
}

func (s *Store) RemoveRoomMember(ctx context.Context, roomID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return fmt.Errorf("remove room member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListRoomMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM room_members WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetMemberRole(ctx context.Context, roomID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM room_members WHERE room_id = ? AND user_id = ?`,
		roomID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get member role: %w", err)
	}
	return role, nil
}

// ==== DMStore ====

// GetOrCreateDMConversation resolves the canonical conversation id for an
// unordered user pair. The id is content-derived, so concurrent calls from
// both participants mint the same row.
func (s *Store) GetOrCreateDMConversation(ctx context.Context, userA, userB string) (string, error) {
	first, second := userA, userB
	if second < first {
		first, second = second, first
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id FROM dm_conversations
		WHERE user1_id = ? AND user2_id = ?`, first, second).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get dm conversation: %w", err)
	}

	id = dm.ConversationID(first, second)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dm_conversations (conversation_id, user1_id, user2_id)
		VALUES (?, ?, ?)
		ON CONFLICT(user1_id, user2_id) DO NOTHING`,
		id, first, second)
	if err != nil {
		return "", fmt.Errorf("create dm conversation: %w", err)
	}
	return id, nil
}

// ==== PollStore ====

func (s *Store) CreatePoll(ctx context.Context, poll *store.Poll) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO polls (poll_id, room_id, question, created_by, created_at, is_closed)
		VALUES (?, ?, ?, ?, ?, 0)`,
		poll.PollID, poll.RoomID, poll.Question, poll.CreatedBy, poll.CreatedAt); err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}

	for _, opt := range poll.Options {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO poll_options (option_id, poll_id, text, opt_index)
			VALUES (?, ?, ?, ?)`,
			opt.OptionID, poll.PollID, opt.Text, opt.Index); err != nil {
			return fmt.Errorf("insert poll option: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetPoll(ctx context.Context, pollID string) (*store.Poll, error) {
	var p store.Poll
	err := s.db.QueryRowContext(ctx, `
		SELECT poll_id, room_id, question, created_by, created_at, is_closed
		FROM polls WHERE poll_id = ?`, pollID).
		Scan(&p.PollID, &p.RoomID, &p.Question, &p.CreatedBy, &p.CreatedAt, &p.IsClosed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get poll: %w", err)
	}

	if err := s.loadPollOptions(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// VotePoll upserts by (poll, user): re-voting moves the vote to the new
// option instead of failing.
func (s *Store) VotePoll(ctx context.Context, vote store.PollVote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poll_votes (poll_id, user_id, username, option_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(poll_id, user_id) DO UPDATE SET option_id = excluded.option_id`,
		vote.PollID, vote.UserID, vote.Username, vote.OptionID)
	if err != nil {
		return fmt.Errorf("vote poll: %w", err)
	}
	return nil
}

func (s *Store) ClosePoll(ctx context.Context, pollID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE polls SET is_closed = 1 WHERE poll_id = ?`, pollID)
	if err != nil {
		return fmt.Errorf("close poll: %w", err)
	}
	return nil
}

func (s *Store) ListRoomPolls(ctx context.Context, roomID string, activeOnly bool) ([]*store.Poll, error) {
	query := `
		SELECT poll_id, room_id, question, created_by, created_at, is_closed
		FROM polls WHERE room_id = ?`
	if activeOnly {
		query += ` AND is_closed = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var polls []*store.Poll
	for rows.Next() {
		var p store.Poll
		if err := rows.Scan(&p.PollID, &p.RoomID, &p.Question, &p.CreatedBy,
			&p.CreatedAt, &p.IsClosed); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		polls = append(polls, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range polls {
		if err := s.loadPollOptions(ctx, p); err != nil {
			return nil, err
		}
	}
	return polls, nil
}

func (s *Store) loadPollOptions(ctx context.Context, p *store.Poll) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT option_id, text, opt_index FROM poll_options
		WHERE poll_id = ? ORDER BY opt_index`, p.PollID)
	if err != nil {
		return fmt.Errorf("load poll options: %w", err)
	}
	defer rows.Close()

	p.Options = p.Options[:0]
	for rows.Next() {
		var opt store.PollOption
		if err := rows.Scan(&opt.OptionID, &opt.Text, &opt.Index); err != nil {
			return fmt.Errorf("scan poll option: %w", err)
		}
		p.Options = append(p.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	voteRows, err := s.db.QueryContext(ctx, `
		SELECT option_id, user_id, username FROM poll_votes WHERE poll_id = ?`, p.PollID)
	if err != nil {
		return fmt.Errorf("load poll votes: %w", err)
	}
	defer voteRows.Close()

	for voteRows.Next() {
		var optionID, userID, username string
		if err := voteRows.Scan(&optionID, &userID, &username); err != nil {
			return fmt.Errorf("scan poll vote: %w", err)
		}
		for i := range p.Options {
			if p.Options[i].OptionID == optionID {
				p.Options[i].VoteCount++
				p.Options[i].VoterIDs = append(p.Options[i].VoterIDs, userID)
				p.Options[i].VoterNames = append(p.Options[i].VoterNames, username)
			}
		}
	}
	return voteRows.Err()
}

// ==== BlockStore ====

func (s *Store) BlockUser(ctx context.Context, userID, targetUserID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocked_users (user_id, blocked_id)
		VALUES (?, ?)
		ON CONFLICT(user_id, blocked_id) DO NOTHING`,
		userID, targetUserID)
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (s *Store) UnblockUser(ctx context.Context, userID, targetUserID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blocked_users WHERE user_id = ? AND blocked_id = ?`,
		userID, targetUserID)
	if err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (s *Store) ListBlockedUsers(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT blocked_id FROM blocked_users WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list blocked users: %w", err)
	}
	defer rows.Close()

	blocked := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocked user: %w", err)
		}
		blocked = append(blocked, id)
	}
	return blocked, rows.Err()
}
