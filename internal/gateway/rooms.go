package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/dm"
	"github.com/chatbox-im/chatbox-server/internal/proto"
	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store"
)

func (g *Gateway) handleCreateRoom(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.CreateRoomRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.RoomName)
	}
	if name == "" {
		g.replyErr(connID, "room name required")
		return
	}
	roomType := req.RoomType
	if roomType == "" {
		roomType = "public"
	}

	roomID := "room-" + uuid.NewString()[:8]
	room := &store.Room{RoomID: roomID, Name: name, RoomType: roomType, CreatorID: state.UserID}
	if err := g.store.CreateRoom(ctx, room); err != nil {
		g.log.Warn().Err(err).Str("room_name", name).Msg("room create failed")
		g.replyErr(connID, "room create failed")
		return
	}
	if err := g.store.AddRoomMember(ctx, roomID, state.UserID, store.RoleOwner); err != nil {
		g.log.Warn().Err(err).Str("room_id", roomID).Msg("owner membership not persisted")
	}
	g.log.Info().Str("room_id", roomID).Str("creator", state.UserID).Msg("room created")

	ev := proto.RoomCreatedEvent{
		Type:     proto.KindRoomCreated,
		RoomID:   roomID,
		RoomName: name,
		RoomType: roomType,
	}
	g.reply(connID, ev)
	if roomType == "public" {
		g.deliver.BroadcastToRoom(ctx, delivery.GlobalRoom, ev, state.UserID)
	}
}

func (g *Gateway) handleJoinRoom(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.RoomRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.RoomID == "" {
		g.replyErr(connID, "roomId required")
		return
	}

	if dm.IsDirect(req.RoomID) {
		g.joinDirectRoom(ctx, connID, state, req.RoomID)
		return
	}

	if _, err := g.store.GetRoom(ctx, req.RoomID); err != nil {
		g.replyErr(connID, "room not found")
		return
	}
	if err := g.store.AddRoomMember(ctx, req.RoomID, state.UserID, store.RoleMember); err != nil {
		g.log.Warn().Err(err).Str("room_id", req.RoomID).Msg("membership not persisted")
	}
	g.reg.SetCurrentRoom(connID, req.RoomID)

	var history []proto.HistoryMessage
	if msgs, err := g.store.ListRoomMessages(ctx, req.RoomID, historyLimit); err == nil {
		history = historyFrom(msgs, req.RoomID)
	} else {
		g.log.Warn().Err(err).Str("room_id", req.RoomID).Msg("room history unavailable")
	}

	members := g.roomMembers(ctx, req.RoomID)

	var polls []proto.Poll
	if stored, err := g.store.ListRoomPolls(ctx, req.RoomID, true); err == nil {
		polls = pollsFrom(stored)
	} else {
		g.log.Warn().Err(err).Str("room_id", req.RoomID).Msg("room polls unavailable")
	}

	g.reply(connID, proto.RoomJoinedEvent{
		Type:        proto.KindRoomJoined,
		RoomID:      req.RoomID,
		UserID:      state.UserID,
		Username:    state.Username,
		History:     history,
		MemberCount: len(members),
		Members:     members,
		Polls:       polls,
	})
	g.deliver.BroadcastToRoom(ctx, req.RoomID, proto.RoomMembershipEvent{
		Type:     proto.KindUserJoinedRoom,
		RoomID:   req.RoomID,
		UserID:   state.UserID,
		Username: state.Username,
	}, state.UserID)
}

// joinDirectRoom opens a DM view. There is no membership row; the viewer's
// CurrentRoom marks the open conversation and history comes from the
// canonical conversation, re-addressed to the viewer's room id.
func (g *Gateway) joinDirectRoom(ctx context.Context, connID string, state registry.State, roomID string) {
	peerID := dm.PeerFromRoomID(roomID)
	if peerID == "" || peerID == state.UserID {
		g.replyErr(connID, "invalid direct room")
		return
	}
	g.reg.SetCurrentRoom(connID, roomID)

	var history []proto.HistoryMessage
	if conv, ok := g.storageRoomID(ctx, state.UserID, roomID); ok {
		if msgs, err := g.store.ListRoomMessages(ctx, conv, historyLimit); err == nil {
			history = historyFrom(msgs, roomID)
		} else {
			g.log.Warn().Err(err).Str("room_id", roomID).Msg("dm history unavailable")
		}
	}

	members := []proto.RoomMemberInfo{{UserID: state.UserID, Username: state.Username}}
	if peer, err := g.store.GetUserByID(ctx, peerID); err == nil {
		members = append(members, proto.RoomMemberInfo{
			UserID:   peer.UserID,
			Username: peer.Username,
			Avatar:   peer.AvatarURL,
		})
	} else {
		members = append(members, proto.RoomMemberInfo{UserID: peerID, Username: peerID})
	}

	g.reply(connID, proto.RoomJoinedEvent{
		Type:        proto.KindRoomJoined,
		RoomID:      roomID,
		UserID:      state.UserID,
		Username:    state.Username,
		History:     history,
		MemberCount: len(members),
		Members:     members,
		Polls:       []proto.Poll{},
	})
}

func (g *Gateway) handleLeaveRoom(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.RoomRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	if state.CurrentRoom == req.RoomID {
		g.reg.SetCurrentRoom(connID, "")
	}
	if dm.IsDirect(req.RoomID) {
		g.reply(connID, proto.RoomLeftEvent{Type: proto.KindRoomLeft, RoomID: req.RoomID, Success: true})
		return
	}

	if err := g.store.RemoveRoomMember(ctx, req.RoomID, state.UserID); err != nil {
		g.reply(connID, proto.RoomLeftEvent{Type: proto.KindRoomLeft, RoomID: req.RoomID, Success: false})
		return
	}
	g.reply(connID, proto.RoomLeftEvent{Type: proto.KindRoomLeft, RoomID: req.RoomID, Success: true})
	g.deliver.BroadcastToRoom(ctx, req.RoomID, proto.RoomMembershipEvent{
		Type:     proto.KindUserLeftRoom,
		RoomID:   req.RoomID,
		UserID:   state.UserID,
		Username: state.Username,
	}, state.UserID)
}

func (g *Gateway) handleGetRooms(ctx context.Context, connID string, state registry.State) {
	// The implicit global room always heads the list, even when the
	// membership query fails.
	rooms := []proto.RoomInfo{{
		RoomID:   delivery.GlobalRoom,
		RoomName: "Global Chat",
		RoomType: "public",
	}}

	memberships, err := g.store.ListUserRooms(ctx, state.UserID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", state.UserID).Msg("room memberships unavailable")
	}
	for _, m := range memberships {
		rooms = append(rooms, proto.RoomInfo{
			RoomID:   m.Room.RoomID,
			RoomName: m.Room.Name,
			RoomType: m.Room.RoomType,
			Role:     m.Role,
		})
	}
	g.reply(connID, proto.RoomListEvent{Type: proto.KindRoomList, Rooms: rooms, Count: len(rooms)})
}

func (g *Gateway) handleInviteUser(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.RoomTargetRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.RoomID == "" || req.TargetUserID == "" {
		g.replyErr(connID, "roomId and targetUserId required")
		return
	}

	if _, err := g.store.GetMemberRole(ctx, req.RoomID, state.UserID); err != nil {
		g.replyErr(connID, "not a member of this room")
		return
	}
	room, err := g.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		g.replyErr(connID, "room not found")
		return
	}

	if err := g.store.AddRoomMember(ctx, req.RoomID, req.TargetUserID, store.RoleMember); err != nil {
		g.log.Warn().Err(err).Str("room_id", req.RoomID).Msg("invite membership not persisted")
	}

	g.deliver.SendToUser(req.TargetUserID, proto.RoomInvitationEvent{
		Type:      proto.KindRoomInvitation,
		RoomID:    req.RoomID,
		RoomName:  room.Name,
		InvitedBy: state.Username,
	})
	g.deliver.BroadcastToRoom(ctx, req.RoomID, proto.UserInvitedEvent{
		Type:         proto.KindUserInvited,
		RoomID:       req.RoomID,
		TargetUserID: req.TargetUserID,
		InvitedBy:    state.Username,
	}, state.UserID)
	g.reply(connID, proto.RoomActionResult{
		Type:         proto.KindInviteSuccess,
		TargetUserID: req.TargetUserID,
		RoomID:       req.RoomID,
	})
}

func (g *Gateway) handleKickUser(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.RoomTargetRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.RoomID == "" || req.TargetUserID == "" {
		g.replyErr(connID, "roomId and targetUserId required")
		return
	}

	role, err := g.store.GetMemberRole(ctx, req.RoomID, state.UserID)
	if err != nil || (role != store.RoleOwner && role != store.RoleAdmin) {
		g.replyErr(connID, "only owners and admins can kick")
		return
	}
	if err := g.store.RemoveRoomMember(ctx, req.RoomID, req.TargetUserID); err != nil {
		g.replyErr(connID, "user is not a member")
		return
	}

	g.deliver.SendToUser(req.TargetUserID, proto.KickedFromRoomEvent{
		Type:     proto.KindKickedFromRoom,
		RoomID:   req.RoomID,
		KickedBy: state.Username,
	})
	g.deliver.BroadcastToRoom(ctx, req.RoomID, proto.UserKickedEvent{
		Type:         proto.KindUserKicked,
		RoomID:       req.RoomID,
		TargetUserID: req.TargetUserID,
		KickedBy:     state.Username,
	}, req.TargetUserID)
	g.reply(connID, proto.RoomActionResult{
		Type:         proto.KindKickSuccess,
		TargetUserID: req.TargetUserID,
		RoomID:       req.RoomID,
	})
}

func (g *Gateway) roomMembers(ctx context.Context, roomID string) []proto.RoomMemberInfo {
	ids, err := g.store.ListRoomMemberIDs(ctx, roomID)
	if err != nil {
		g.log.Warn().Err(err).Str("room_id", roomID).Msg("member list unavailable")
		return []proto.RoomMemberInfo{}
	}
	members := make([]proto.RoomMemberInfo, 0, len(ids))
	for _, id := range ids {
		info := proto.RoomMemberInfo{UserID: id, Username: id}
		if u, err := g.store.GetUserByID(ctx, id); err == nil {
			info.Username = u.Username
			info.Avatar = u.AvatarURL
		}
		members = append(members, info)
	}
	return members
}

func (g *Gateway) handleBlock(ctx context.Context, connID string, state registry.State, frame proto.Frame, block bool) {
	var req proto.BlockRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.TargetUserID == "" || req.TargetUserID == state.UserID {
		g.replyErr(connID, "invalid target user")
		return
	}

	var err error
	kind := proto.KindUserBlocked
	if block {
		err = g.store.BlockUser(ctx, state.UserID, req.TargetUserID)
	} else {
		kind = proto.KindUserUnblocked
		err = g.store.UnblockUser(ctx, state.UserID, req.TargetUserID)
	}
	if err != nil {
		g.log.Warn().Err(err).Str("target", req.TargetUserID).Msg("block update failed")
	}
	g.reply(connID, proto.BlockResult{
		Type:         kind,
		TargetUserID: req.TargetUserID,
		Success:      err == nil,
	})
}

func (g *Gateway) handleGetBlockedUsers(ctx context.Context, connID string, state registry.State) {
	blocked, err := g.store.ListBlockedUsers(ctx, state.UserID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", state.UserID).Msg("block list unavailable")
		g.replyErr(connID, "block list unavailable")
		return
	}
	g.reply(connID, proto.BlockedUsersEvent{Type: proto.KindBlockedUsersList, BlockedUsers: blocked})
}

// pollsFrom converts stored polls to their wire form.
func pollsFrom(stored []*store.Poll) []proto.Poll {
	out := make([]proto.Poll, 0, len(stored))
	for _, p := range stored {
		out = append(out, pollFrom(p))
	}
	return out
}

func pollFrom(p *store.Poll) proto.Poll {
	opts := make([]proto.PollOption, 0, len(p.Options))
	for _, o := range p.Options {
		voters := o.VoterNames
		if voters == nil {
			voters = []string{}
		}
		opts = append(opts, proto.PollOption{
			ID:     o.OptionID,
			Text:   o.Text,
			Votes:  o.VoteCount,
			Voters: voters,
		})
	}
	return proto.Poll{
		ID:        p.PollID,
		Question:  p.Question,
		Options:   opts,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
		IsClosed:  p.IsClosed,
		RoomID:    p.RoomID,
	}
}
