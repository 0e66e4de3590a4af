// Package proto defines the JSON wire protocol: flat frames of shape
// {"type": string, ...fields}, symmetric in both directions.
package proto

import (
	"encoding/json"
	"fmt"
)

// Kind tags a frame. The inbound set is closed; the dispatcher switches over
// it exhaustively and anything else is an unknown-type error.
type Kind string

// Inbound frame kinds.
const (
	KindRegister        Kind = "register"
	KindLogin           Kind = "login"
	KindAuth            Kind = "auth"
	KindPing            Kind = "ping"
	KindChat            Kind = "chat"
	KindChatSticker     Kind = "chat_sticker"
	KindChatLocation    Kind = "chat_location"
	KindTyping          Kind = "typing"
	KindPresenceUpdate  Kind = "presence_update"
	KindGetOnlineUsers  Kind = "get_online_users"
	KindEditMessage     Kind = "edit_message"
	KindDeleteMessage   Kind = "delete_message"
	KindReplyMessage    Kind = "reply_message"
	KindForwardMessage  Kind = "forward_message"
	KindAddReaction     Kind = "add_reaction"
	KindPinMessage      Kind = "pin_message"
	KindUnpinMessage    Kind = "unpin_message"
	KindMarkRead        Kind = "mark_read"
	KindSearchMessages  Kind = "search_messages"
	KindCreateRoom      Kind = "create_room"
	KindJoinRoom        Kind = "join_room"
	KindLeaveRoom       Kind = "leave_room"
	KindGetRooms        Kind = "get_rooms"
	KindInviteUser      Kind = "invite_user"
	KindKickUser        Kind = "kick_user"
	KindUserBlock       Kind = "user_block"
	KindUserUnblock     Kind = "user_unblock"
	KindGetBlockedUsers Kind = "get_blocked_users"
	KindProfileUpdate   Kind = "profile_update"
	KindChangePassword  Kind = "change_password"
	KindAIRequest       Kind = "ai_request"
	KindPollCreate      Kind = "poll_create"
	KindPollVote        Kind = "poll_vote"
	KindPollClose       Kind = "poll_close"
	KindGetRoomPolls    Kind = "get_room_polls"
	KindGameInvite      Kind = "game_invite"
	KindGameAccept      Kind = "game_accept"
	KindGameReject      Kind = "game_reject"
	KindGameMove        Kind = "game_move"
	KindWatchCreate     Kind = "watch_create"
	KindWatchSync       Kind = "watch_sync"
	KindWatchEnd        Kind = "watch_end"
	KindCallInit        Kind = "call_init"
	KindCallAccept      Kind = "call_accept"
	KindCallReject      Kind = "call_reject"
	KindCallEnd         Kind = "call_end"
	KindWebRTCOffer     Kind = "webrtc_offer"
	KindWebRTCAnswer    Kind = "webrtc_answer"
	KindWebRTCICE       Kind = "webrtc_ice"
	KindUploadInit      Kind = "upload_init"
	KindUploadChunk     Kind = "upload_chunk"
	KindUploadFinalize  Kind = "upload_finalize"
)

// Frame is one decoded inbound envelope. Raw keeps the full frame so each
// handler unmarshals its typed payload exactly once.
type Frame struct {
	Kind Kind
	Raw  json.RawMessage
}

// Decode parses the envelope of an inbound frame.
func Decode(data []byte) (Frame, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	if env.Type == "" {
		return Frame{}, fmt.Errorf("frame missing type")
	}
	return Frame{Kind: env.Type, Raw: json.RawMessage(data)}, nil
}

// Payload unmarshals the frame body into a typed payload struct.
func (f Frame) Payload(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return fmt.Errorf("parse %s payload: %w", f.Kind, err)
	}
	return nil
}
