package proto

import "encoding/json"

// Outbound frame kinds.
const (
	KindError                 Kind = "error"
	KindRegisterResponse      Kind = "register_response"
	KindLoginResponse         Kind = "login_response"
	KindAuthResponse          Kind = "auth_response"
	KindPong                  Kind = "pong"
	KindHistory               Kind = "history"
	KindOnlineUsers           Kind = "online_users"
	KindUserJoined            Kind = "user_joined"
	KindMessageEdited         Kind = "message_edited"
	KindMessageDeleted        Kind = "message_deleted"
	KindMessageForwarded      Kind = "message_forwarded"
	KindForwardSuccess        Kind = "forward_success"
	KindReactionAdded         Kind = "reaction_added"
	KindMessagePinned         Kind = "message_pinned"
	KindMessageUnpinned       Kind = "message_unpinned"
	KindMessageRead           Kind = "message_read"
	KindSearchResults         Kind = "search_results"
	KindRoomCreated           Kind = "room_created"
	KindRoomJoined            Kind = "room_joined"
	KindRoomLeft              Kind = "room_left"
	KindRoomList              Kind = "room_list"
	KindUserJoinedRoom        Kind = "user_joined_room"
	KindUserLeftRoom          Kind = "user_left_room"
	KindRoomInvitation        Kind = "room_invitation"
	KindUserInvited           Kind = "user_invited"
	KindInviteSuccess         Kind = "invite_success"
	KindKickedFromRoom        Kind = "kicked_from_room"
	KindUserKicked            Kind = "user_kicked"
	KindKickSuccess           Kind = "kick_success"
	KindUserBlocked           Kind = "user_blocked"
	KindUserUnblocked         Kind = "user_unblocked"
	KindBlockedUsersList      Kind = "blocked_users_list"
	KindProfileUpdated        Kind = "profile_updated"
	KindProfileUpdateResponse Kind = "profile_update_response"
	KindChangePasswordResp    Kind = "change_password_response"
	KindAIResponse            Kind = "ai_response"
	KindAIError               Kind = "ai_error"
	KindPollCreated           Kind = "poll_created"
	KindPollClosed            Kind = "poll_closed"
	KindRoomPolls             Kind = "room_polls"
	KindGameStart             Kind = "game_start"
	KindGameRejected          Kind = "game_rejected"
	KindWatchSessionCreated   Kind = "watch_session_created"
	KindWatchEnded            Kind = "watch_ended"
	KindCallIncoming          Kind = "call_incoming"
	KindCallInitResponse      Kind = "call_init_response"
	KindCallAccepted          Kind = "call_accepted"
	KindCallAcceptResponse    Kind = "call_accept_response"
	KindCallRejected          Kind = "call_rejected"
	KindCallRejectResponse    Kind = "call_reject_response"
	KindCallEnded             Kind = "call_ended"
	KindCallEndResponse       Kind = "call_end_response"
)

// Error is the uniform failure reply. The connection stays open.
type Error struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: KindError, Message: message}
}

// Ack is the generic success/failure reply shared by the *_response frames.
type Ack struct {
	Type    Kind   `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type LoginResponse struct {
	Type     Kind   `json:"type"`
	Success  bool   `json:"success"`
	Token    string `json:"token,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Message  string `json:"message"`
}

type AuthResponse struct {
	Type     Kind   `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

type Pong struct {
	Type      Kind  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// ChatEvent is the delivered form of chat, reply, sticker and location
// messages. Timestamp is unix milliseconds.
type ChatEvent struct {
	Type        Kind            `json:"type"`
	MessageType string          `json:"messageType,omitempty"`
	MessageID   string          `json:"messageId"`
	RoomID      string          `json:"roomId"`
	UserID      string          `json:"userId"`
	Username    string          `json:"username"`
	Content     string          `json:"content,omitempty"`
	Sticker     string          `json:"sticker,omitempty"`
	Latitude    float64         `json:"latitude,omitempty"`
	Longitude   float64         `json:"longitude,omitempty"`
	ReplyToID   string          `json:"replyToId,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

type TypingEvent struct {
	Type     Kind   `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type PresenceEvent struct {
	Type     Kind   `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

type HistoryMessage struct {
	MessageID string          `json:"messageId"`
	RoomID    string          `json:"roomId"`
	UserID    string          `json:"userId"`
	Username  string          `json:"username"`
	Content   string          `json:"content"`
	Timestamp int64           `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

type HistoryEvent struct {
	Type     Kind             `json:"type"`
	RoomID   string           `json:"roomId"`
	Messages []HistoryMessage `json:"messages"`
}

type OnlineUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
	Status   string `json:"status"`
}

type OnlineUsersEvent struct {
	Type  Kind         `json:"type"`
	Users []OnlineUser `json:"users"`
}

type UserJoinedEvent struct {
	Type     Kind   `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type MessageEditedEvent struct {
	Type       Kind   `json:"type"`
	MessageID  string `json:"messageId"`
	NewContent string `json:"newContent"`
	EditedAt   int64  `json:"editedAt"`
	UserID     string `json:"userId"`
}

type MessageDeletedEvent struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

type MessageForwardedEvent struct {
	Type              Kind   `json:"type"`
	MessageID         string `json:"messageId"`
	OriginalMessageID string `json:"originalMessageId"`
	TargetRoomID      string `json:"targetRoomId"`
	Content           string `json:"content"`
	ForwardedBy       string `json:"forwardedBy"`
	OriginalSender    string `json:"originalSender"`
	Timestamp         int64  `json:"timestamp"`
}

type ForwardSuccessEvent struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"messageId"`
}

type ReactionEvent struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

type PinEvent struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username,omitempty"`
}

type MessageReadEvent struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	ReadBy    string `json:"readBy"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

type SearchResult struct {
	MessageID  string `json:"messageId"`
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

type SearchResultsEvent struct {
	Type    Kind           `json:"type"`
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

type RoomCreatedEvent struct {
	Type     Kind   `json:"type"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	RoomType string `json:"roomType"`
}

type RoomMemberInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type RoomJoinedEvent struct {
	Type        Kind             `json:"type"`
	RoomID      string           `json:"roomId"`
	UserID      string           `json:"userId"`
	Username    string           `json:"username"`
	History     []HistoryMessage `json:"history"`
	MemberCount int              `json:"memberCount"`
	Members     []RoomMemberInfo `json:"members"`
	Polls       []Poll           `json:"polls"`
}

type RoomLeftEvent struct {
	Type    Kind   `json:"type"`
	RoomID  string `json:"roomId"`
	Success bool   `json:"success"`
}

type RoomMembershipEvent struct {
	Type     Kind   `json:"type"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type RoomInfo struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	RoomType string `json:"roomType"`
	Role     string `json:"role,omitempty"`
	Unread   int    `json:"unread"`
}

type RoomListEvent struct {
	Type  Kind       `json:"type"`
	Rooms []RoomInfo `json:"rooms"`
	Count int        `json:"count"`
}

type RoomInvitationEvent struct {
	Type      Kind   `json:"type"`
	RoomID    string `json:"roomId"`
	RoomName  string `json:"roomName"`
	InvitedBy string `json:"invitedBy"`
}

type UserInvitedEvent struct {
	Type         Kind   `json:"type"`
	RoomID       string `json:"roomId"`
	TargetUserID string `json:"targetUserId"`
	InvitedBy    string `json:"invitedBy"`
}

type KickedFromRoomEvent struct {
	Type     Kind   `json:"type"`
	RoomID   string `json:"roomId"`
	KickedBy string `json:"kickedBy"`
}

type UserKickedEvent struct {
	Type         Kind   `json:"type"`
	RoomID       string `json:"roomId"`
	TargetUserID string `json:"targetUserId"`
	KickedBy     string `json:"kickedBy"`
}

type RoomActionResult struct {
	Type         Kind   `json:"type"`
	TargetUserID string `json:"targetUserId"`
	RoomID       string `json:"roomId"`
}

type BlockResult struct {
	Type         Kind   `json:"type"`
	TargetUserID string `json:"targetUserId"`
	Success      bool   `json:"success"`
}

type BlockedUsersEvent struct {
	Type         Kind     `json:"type"`
	BlockedUsers []string `json:"blockedUsers"`
}

type ProfileUpdatedEvent struct {
	Type          Kind   `json:"type"`
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	StatusMessage string `json:"statusMessage"`
	Avatar        string `json:"avatar"`
}

type AIResponseEvent struct {
	Type     Kind   `json:"type"`
	Response string `json:"response"`
}

type AIErrorEvent struct {
	Type  Kind   `json:"type"`
	Error string `json:"error"`
}

type PollOption struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Votes  int      `json:"votes"`
	Voters []string `json:"voters"`
}

type Poll struct {
	ID        string       `json:"id"`
	Question  string       `json:"question"`
	Options   []PollOption `json:"options"`
	CreatedBy string       `json:"createdBy"`
	CreatedAt int64        `json:"createdAt"`
	IsClosed  bool         `json:"isClosed"`
	RoomID    string       `json:"roomId,omitempty"`
}

type PollCreatedEvent struct {
	Type   Kind   `json:"type"`
	RoomID string `json:"roomId"`
	Poll   Poll   `json:"poll"`
}

type PollVoteEvent struct {
	Type     Kind   `json:"type"`
	PollID   string `json:"pollId"`
	OptionID string `json:"optionId"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type PollClosedEvent struct {
	Type   Kind   `json:"type"`
	PollID string `json:"pollId"`
}

type RoomPollsEvent struct {
	Type   Kind   `json:"type"`
	RoomID string `json:"roomId"`
	Polls  []Poll `json:"polls"`
}

type GameInviteEvent struct {
	Type       Kind   `json:"type"`
	GameID     string `json:"gameId"`
	GameType   string `json:"gameType"`
	FromUser   string `json:"fromUser"`
	FromUserID string `json:"fromUserId"`
}

// GameState is the shared tic-tac-toe board; inviter plays X, accepter O.
type GameState struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Board       []string          `json:"board"`
	CurrentTurn string            `json:"currentTurn"`
	Players     map[string]string `json:"players"`
	Winner      *string           `json:"winner"`
	Status      string            `json:"status"`
}

type GameStartEvent struct {
	Type   Kind      `json:"type"`
	GameID string    `json:"gameId"`
	Game   GameState `json:"game"`
}

type GameRejectedEvent struct {
	Type   Kind   `json:"type"`
	GameID string `json:"gameId"`
}

type GameMoveEvent struct {
	Type     Kind   `json:"type"`
	GameID   string `json:"gameId"`
	Position int    `json:"position"`
	PlayerID string `json:"playerId"`
}

type WatchSessionEvent struct {
	Type        Kind   `json:"type"`
	RoomID      string `json:"roomId"`
	VideoURL    string `json:"videoUrl"`
	CreatedBy   string `json:"createdBy"`
	ViewerCount int    `json:"viewerCount"`
}

type WatchSyncEvent struct {
	Type     Kind    `json:"type"`
	Action   string  `json:"action"`
	Time     float64 `json:"time"`
	SyncedBy string  `json:"syncedBy"`
}

type WatchEndedEvent struct {
	Type Kind `json:"type"`
}
