package proto

import "encoding/json"

// Inbound payload structs. Field names follow the client protocol.

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthRequest struct {
	Token string `json:"token"`
}

type ChatRequest struct {
	Content  string          `json:"content"`
	RoomID   string          `json:"roomId"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type StickerRequest struct {
	Sticker string `json:"sticker"`
	RoomID  string `json:"roomId"`
}

type LocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RoomID    string  `json:"roomId"`
}

type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

type PresenceUpdateRequest struct {
	Status string `json:"status"`
}

type EditMessageRequest struct {
	MessageID  string `json:"messageId"`
	NewContent string `json:"newContent"`
	RoomID     string `json:"roomId"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type ReplyMessageRequest struct {
	Content   string `json:"content"`
	ReplyToID string `json:"replyToId"`
	RoomID    string `json:"roomId"`
}

type ForwardMessageRequest struct {
	MessageID    string `json:"messageId"`
	TargetRoomID string `json:"targetRoomId"`
}

type ReactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	RoomID    string `json:"roomId"`
}

type PinRequest struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type MarkReadRequest struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type SearchRequest struct {
	Query  string `json:"query"`
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit"`
}

type CreateRoomRequest struct {
	Name     string `json:"name"`
	RoomName string `json:"roomName"` // legacy alias for Name
	RoomType string `json:"roomType"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type RoomTargetRequest struct {
	TargetUserID string `json:"targetUserId"`
	RoomID       string `json:"roomId"`
}

type BlockRequest struct {
	TargetUserID string `json:"targetUserId"`
}

type ProfileUpdateRequest struct {
	DisplayName   string `json:"displayName"`
	StatusMessage string `json:"statusMessage"`
	Avatar        string `json:"avatar"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type AIRequest struct {
	Message string `json:"message"`
}

type PollCreateRequest struct {
	RoomID   string   `json:"roomId"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type PollVoteRequest struct {
	PollID   string `json:"pollId"`
	OptionID string `json:"optionId"`
	RoomID   string `json:"roomId"`
}

type PollCloseRequest struct {
	PollID string `json:"pollId"`
}

type RoomPollsRequest struct {
	RoomID     string `json:"roomId"`
	ActiveOnly bool   `json:"activeOnly"`
}

type GameInviteRequest struct {
	GameType   string `json:"gameType"`
	OpponentID string `json:"opponentId"`
}

type GameAcceptRequest struct {
	GameID     string `json:"gameId"`
	FromUserID string `json:"fromUserId"`
}

type GameRejectRequest struct {
	GameID string `json:"gameId"`
}

type GameMoveRequest struct {
	GameID   string `json:"gameId"`
	Position int    `json:"position"`
}

type WatchCreateRequest struct {
	RoomID   string `json:"roomId"`
	VideoURL string `json:"videoUrl"`
}

type WatchSyncRequest struct {
	Action string  `json:"action"`
	Time   float64 `json:"time"`
}

type CallInitRequest struct {
	TargetID string `json:"targetId"`
	CallType string `json:"callType"`
}

type CallAcceptRequest struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
}

type CallRejectRequest struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
	Reason   string `json:"reason"`
}

type CallEndRequest struct {
	CallID   string `json:"callId"`
	TargetID string `json:"targetId"`
}

// WebRTCSignalRequest covers webrtc_offer, webrtc_answer and webrtc_ice; the
// SDP and candidate payloads are opaque to this server.
type WebRTCSignalRequest struct {
	CallID    string `json:"callId"`
	TargetID  string `json:"targetId"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}
