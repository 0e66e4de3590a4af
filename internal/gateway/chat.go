package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/dm"
	"github.com/chatbox-im/chatbox-server/internal/proto"
	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store"
)

const aiMention = "@ai"

func (g *Gateway) handleChat(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.ChatRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		g.replyErr(connID, "message content required")
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	ev := proto.ChatEvent{
		Type:      proto.KindChat,
		MessageID: newMessageID("msg", state.UserID),
		RoomID:    roomID,
		UserID:    state.UserID,
		Username:  state.Username,
		Content:   req.Content,
		Metadata:  req.Metadata,
		Timestamp: time.Now().UnixMilli(),
	}
	if !g.deliverChat(ctx, connID, state, ev) {
		return
	}
	g.persistChat(ctx, state, ev)

	// "@ai ..." asks the assistant to answer into the same room.
	if prompt, ok := strings.CutPrefix(req.Content, aiMention); ok {
		g.enqueueAI(connID, state, aiJob{
			sessionID: state.SessionID,
			userID:    state.UserID,
			roomID:    roomID,
			prompt:    strings.TrimSpace(prompt),
			toRoom:    true,
		})
	}
}

func (g *Gateway) handleSticker(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.StickerRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.Sticker == "" {
		g.replyErr(connID, "sticker required")
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	ev := proto.ChatEvent{
		Type:        proto.KindChat,
		MessageType: "sticker",
		MessageID:   newMessageID("sticker", state.UserID),
		RoomID:      roomID,
		UserID:      state.UserID,
		Username:    state.Username,
		Sticker:     req.Sticker,
		Timestamp:   time.Now().UnixMilli(),
	}
	if !g.deliverChat(ctx, connID, state, ev) {
		return
	}
	g.persistChat(ctx, state, ev)
}

func (g *Gateway) handleLocation(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.LocationRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	ev := proto.ChatEvent{
		Type:        proto.KindChat,
		MessageType: "location",
		MessageID:   newMessageID("loc", state.UserID),
		RoomID:      roomID,
		UserID:      state.UserID,
		Username:    state.Username,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Timestamp:   time.Now().UnixMilli(),
	}
	if !g.deliverChat(ctx, connID, state, ev) {
		return
	}
	g.persistChat(ctx, state, ev)
}

func (g *Gateway) handleReplyMessage(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.ReplyMessageRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.Content == "" || req.ReplyToID == "" {
		g.replyErr(connID, "content and replyToId required")
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	ev := proto.ChatEvent{
		Type:      proto.KindChat,
		MessageID: newMessageID("msg", state.UserID),
		RoomID:    roomID,
		UserID:    state.UserID,
		Username:  state.Username,
		Content:   req.Content,
		ReplyToID: req.ReplyToID,
		Timestamp: time.Now().UnixMilli(),
	}
	if !g.deliverChat(ctx, connID, state, ev) {
		return
	}
	g.persistChat(ctx, state, ev)
}

// deliverChat echoes the event to the sender and fans it out. For direct
// rooms the recipient sees the sender-relative room id (A's dm_B arrives at B
// as dm_A). Returns false if delivery was refused (blocked peer).
func (g *Gateway) deliverChat(ctx context.Context, connID string, state registry.State, ev proto.ChatEvent) bool {
	if dm.IsDirect(ev.RoomID) {
		peerID := dm.PeerFromRoomID(ev.RoomID)
		if peerID == "" || peerID == state.UserID {
			g.replyErr(connID, "invalid direct room")
			return false
		}
		if g.isBlockedBy(ctx, state.UserID, peerID) {
			g.replyErr(connID, "you are blocked by this user")
			return false
		}

		g.deliver.SendToUser(state.UserID, ev)
		peerView := ev
		peerView.RoomID = dm.ViewerRoomID(state.UserID)
		g.deliver.SendToUser(peerID, peerView)
		return true
	}

	g.deliver.SendToUser(state.UserID, ev)
	g.deliver.BroadcastToRoom(ctx, ev.RoomID, ev, state.UserID)
	g.broker.PublishRoomEvent(ev.RoomID, ev)
	return true
}

// persistChat writes the message after delivery; failures are logged and do
// not affect what was already sent.
func (g *Gateway) persistChat(ctx context.Context, state registry.State, ev proto.ChatEvent) {
	storageRoom, ok := g.storageRoomID(ctx, state.UserID, ev.RoomID)
	if !ok {
		return
	}

	content := ev.Content
	var meta string
	switch ev.MessageType {
	case "sticker":
		content = ev.Sticker
		meta = `{"messageType":"sticker"}`
	case "location":
		meta = fmt.Sprintf(`{"messageType":"location","latitude":%g,"longitude":%g}`, ev.Latitude, ev.Longitude)
	default:
		if len(ev.Metadata) > 0 {
			meta = string(ev.Metadata)
		}
	}

	err := g.store.SaveMessage(ctx, &store.Message{
		MessageID:  ev.MessageID,
		RoomID:     storageRoom,
		SenderID:   ev.UserID,
		SenderName: ev.Username,
		Content:    content,
		ReplyToID:  ev.ReplyToID,
		Metadata:   meta,
		Timestamp:  ev.Timestamp / 1000,
	})
	if err != nil {
		g.log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("message not persisted")
	}
}

// storageRoomID maps a wire room id to its storage key: direct rooms persist
// under the canonical conversation id, everything else as-is.
func (g *Gateway) storageRoomID(ctx context.Context, userID, roomID string) (string, bool) {
	if !dm.IsDirect(roomID) {
		return roomID, true
	}
	peerID := dm.PeerFromRoomID(roomID)
	conv, err := g.store.GetOrCreateDMConversation(ctx, userID, peerID)
	if err != nil {
		g.log.Warn().Err(err).Str("room_id", roomID).Msg("dm conversation unavailable, skipping persistence")
		return "", false
	}
	return conv, true
}

func (g *Gateway) isBlockedBy(ctx context.Context, senderID, peerID string) bool {
	blocked, err := g.store.ListBlockedUsers(ctx, peerID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", peerID).Msg("block list unavailable")
		return false
	}
	for _, id := range blocked {
		if id == senderID {
			return true
		}
	}
	return false
}

// fanRoomEvent delivers a room-scoped event that carries no per-viewer room
// id. Direct rooms resolve to the two participants.
func (g *Gateway) fanRoomEvent(ctx context.Context, state registry.State, roomID string, payload any, includeSender bool) {
	if dm.IsDirect(roomID) {
		if includeSender {
			g.deliver.SendToUser(state.UserID, payload)
		}
		g.deliver.SendToUser(dm.PeerFromRoomID(roomID), payload)
		return
	}
	exclude := state.UserID
	if includeSender {
		g.deliver.SendToUser(state.UserID, payload)
	}
	g.deliver.BroadcastToRoom(ctx, roomID, payload, exclude)
}

func (g *Gateway) handleEditMessage(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.EditMessageRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.MessageID == "" || req.NewContent == "" {
		g.replyErr(connID, "messageId and newContent required")
		return
	}

	if err := g.store.EditMessage(ctx, req.MessageID, state.UserID, req.NewContent); err != nil {
		g.replyErr(connID, "cannot edit message")
		return
	}
	g.fanRoomEvent(ctx, state, req.RoomID, proto.MessageEditedEvent{
		Type:       proto.KindMessageEdited,
		MessageID:  req.MessageID,
		NewContent: req.NewContent,
		EditedAt:   time.Now().UnixMilli(),
		UserID:     state.UserID,
	}, true)
}

func (g *Gateway) handleDeleteMessage(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.DeleteMessageRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	msg, err := g.store.GetMessage(ctx, req.MessageID)
	if err != nil || msg.SenderID != state.UserID {
		g.replyErr(connID, "cannot delete message")
		return
	}
	if err := g.store.SoftDeleteMessage(ctx, req.MessageID); err != nil {
		g.replyErr(connID, "cannot delete message")
		return
	}
	g.fanRoomEvent(ctx, state, req.RoomID, proto.MessageDeletedEvent{
		Type:      proto.KindMessageDeleted,
		MessageID: req.MessageID,
		UserID:    state.UserID,
	}, true)
}

func (g *Gateway) handleForwardMessage(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.ForwardMessageRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.TargetRoomID == "" {
		g.replyErr(connID, "targetRoomId required")
		return
	}

	original, err := g.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		g.replyErr(connID, "message not found")
		return
	}

	now := time.Now()
	newID := newMessageID("msg", state.UserID)
	if storageRoom, ok := g.storageRoomID(ctx, state.UserID, req.TargetRoomID); ok {
		err := g.store.SaveMessage(ctx, &store.Message{
			MessageID:  newID,
			RoomID:     storageRoom,
			SenderID:   state.UserID,
			SenderName: state.Username,
			Content:    original.Content,
			Metadata:   fmt.Sprintf(`{"forwardedFrom":%q}`, original.SenderName),
			Timestamp:  now.Unix(),
		})
		if err != nil {
			g.log.Warn().Err(err).Str("message_id", newID).Msg("forward not persisted")
		}
	}

	g.reply(connID, proto.ForwardSuccessEvent{Type: proto.KindForwardSuccess, MessageID: newID})
	g.fanRoomEvent(ctx, state, req.TargetRoomID, proto.MessageForwardedEvent{
		Type:              proto.KindMessageForwarded,
		MessageID:         newID,
		OriginalMessageID: original.MessageID,
		TargetRoomID:      req.TargetRoomID,
		Content:           original.Content,
		ForwardedBy:       state.Username,
		OriginalSender:    original.SenderName,
		Timestamp:         now.UnixMilli(),
	}, false)
}

func (g *Gateway) handleAddReaction(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.ReactionRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.MessageID == "" || req.Emoji == "" {
		g.replyErr(connID, "messageId and emoji required")
		return
	}

	g.fanRoomEvent(ctx, state, req.RoomID, proto.ReactionEvent{
		Type:      proto.KindReactionAdded,
		MessageID: req.MessageID,
		Emoji:     req.Emoji,
		RoomID:    req.RoomID,
		UserID:    state.UserID,
		Username:  state.Username,
	}, true)
}

func (g *Gateway) handlePin(ctx context.Context, connID string, state registry.State, frame proto.Frame, pin bool) {
	var req proto.PinRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.MessageID == "" {
		g.replyErr(connID, "messageId required")
		return
	}

	kind := proto.KindMessagePinned
	if !pin {
		kind = proto.KindMessageUnpinned
	}
	g.fanRoomEvent(ctx, state, req.RoomID, proto.PinEvent{
		Type:      kind,
		MessageID: req.MessageID,
		RoomID:    req.RoomID,
		UserID:    state.UserID,
		Username:  state.Username,
	}, true)
}

func (g *Gateway) handleMarkRead(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.MarkReadRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	if err := g.store.MarkRead(ctx, req.MessageID, state.UserID); err != nil {
		g.log.Warn().Err(err).Str("message_id", req.MessageID).Msg("read receipt not persisted")
	}
	g.fanRoomEvent(ctx, state, req.RoomID, proto.MessageReadEvent{
		Type:      proto.KindMessageRead,
		MessageID: req.MessageID,
		RoomID:    req.RoomID,
		ReadBy:    state.UserID,
		Username:  state.Username,
		Timestamp: time.Now().UnixMilli(),
	}, false)
}

func (g *Gateway) handleSearchMessages(ctx context.Context, connID string, frame proto.Frame) {
	var req proto.SearchRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		g.replyErr(connID, "query required")
		return
	}

	msgs, err := g.store.SearchMessages(ctx, req.Query, req.RoomID, req.Limit)
	if err != nil {
		g.log.Warn().Err(err).Str("query", req.Query).Msg("search failed")
		g.replyErr(connID, "search failed")
		return
	}

	results := make([]proto.SearchResult, 0, len(msgs))
	for _, m := range msgs {
		results = append(results, proto.SearchResult{
			MessageID:  m.MessageID,
			RoomID:     m.RoomID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Content:    m.Content,
			Timestamp:  unixMilli(m.Timestamp),
		})
	}
	g.reply(connID, proto.SearchResultsEvent{
		Type:    proto.KindSearchResults,
		Query:   req.Query,
		Results: results,
		Count:   len(results),
	})
}

// historyFrom converts stored messages to wire history entries, rewriting the
// room id to the viewer's addressing.
func historyFrom(msgs []*store.Message, viewRoomID string) []proto.HistoryMessage {
	out := make([]proto.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		var meta json.RawMessage
		if m.Metadata != "" {
			meta = json.RawMessage(m.Metadata)
		}
		out = append(out, proto.HistoryMessage{
			MessageID: m.MessageID,
			RoomID:    viewRoomID,
			UserID:    m.SenderID,
			Username:  m.SenderName,
			Content:   m.Content,
			Timestamp: unixMilli(m.Timestamp),
			Metadata:  meta,
		})
	}
	return out
}
