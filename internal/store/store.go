// Package store defines the persistence collaborator consumed by the routing
// core. Live delivery is never conditioned on these calls succeeding.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// User is a registered account. User ids are opaque strings with stable
// equality.
type User struct {
	UserID        string
	Username      string
	PasswordHash  string
	Email         string
	DisplayName   string
	StatusMessage string
	AvatarURL     string
	Online        bool
	CreatedAt     time.Time
}

// Message is a persisted chat message. Timestamp is unix seconds; the wire
// layer converts to milliseconds. Metadata is an opaque JSON blob (file
// attachments, stickers, locations, forwards).
type Message struct {
	MessageID  string
	RoomID     string
	SenderID   string
	SenderName string
	Content    string
	ReplyToID  string
	Metadata   string
	Timestamp  int64
	EditedAt   int64
	Deleted    bool
}

// Room is a named delivery scope. "global" is implicit and never stored.
type Room struct {
	RoomID    string
	Name      string
	RoomType  string
	CreatorID string
	CreatedAt time.Time
}

// Member roles within a room.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// RoomMembership pairs a room with the caller's role in it.
type RoomMembership struct {
	Room Room
	Role string
}

// PollOption is one votable choice.
type PollOption struct {
	OptionID   string
	Text       string
	Index      int
	VoteCount  int
	VoterIDs   []string
	VoterNames []string
}

// Poll is a room-scoped poll with its options and tallies.
type Poll struct {
	PollID    string
	RoomID    string
	Question  string
	CreatedBy string
	CreatedAt int64
	IsClosed  bool
	Options   []PollOption
}

// PollVote records one user's vote.
type PollVote struct {
	PollID   string
	OptionID string
	UserID   string
	Username string
}

// UserStore handles account persistence.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash, email string) (*User, error)
	GetUserByID(ctx context.Context, userID string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUserStatus(ctx context.Context, userID string, online bool) error
	UpdateProfile(ctx context.Context, userID, displayName, statusMessage, avatarURL string) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// MessageStore handles message persistence.
//
// SaveMessage is an idempotent upsert: the live path generates ids from a
// one-second clock and performs no deduplication, so replays of the same id
// must not fail (at-least-once delivery).
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)
	SearchMessages(ctx context.Context, query, roomID string, limit int) ([]*Message, error)
	EditMessage(ctx context.Context, messageID, senderID, newContent string) error
	SoftDeleteMessage(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, messageID, userID string) error
}

// RoomStore handles room and membership persistence.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	ListUserRooms(ctx context.Context, userID string) ([]*RoomMembership, error)
	AddRoomMember(ctx context.Context, roomID, userID, role string) error
	RemoveRoomMember(ctx context.Context, roomID, userID string) error
	ListRoomMemberIDs(ctx context.Context, roomID string) ([]string, error)
	GetMemberRole(ctx context.Context, roomID, userID string) (string, error)
}

// DMStore resolves direct-message conversation identity.
//
// GetOrCreateDMConversation returns the same canonical conversation id for
// (A, B) and (B, A) so either participant's call converges on one record.
type DMStore interface {
	GetOrCreateDMConversation(ctx context.Context, userA, userB string) (string, error)
}

// PollStore handles poll persistence.
type PollStore interface {
	CreatePoll(ctx context.Context, poll *Poll) error
	GetPoll(ctx context.Context, pollID string) (*Poll, error)
	VotePoll(ctx context.Context, vote PollVote) error
	ClosePoll(ctx context.Context, pollID string) error
	ListRoomPolls(ctx context.Context, roomID string, activeOnly bool) ([]*Poll, error)
}

// BlockStore handles user block lists.
type BlockStore interface {
	BlockUser(ctx context.Context, userID, targetUserID string) error
	UnblockUser(ctx context.Context, userID, targetUserID string) error
	ListBlockedUsers(ctx context.Context, userID string) ([]string, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	RoomStore
	DMStore
	PollStore
	BlockStore

	Close() error
}
