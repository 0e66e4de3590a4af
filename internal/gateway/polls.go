package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/dm"
	"github.com/chatbox-im/chatbox-server/internal/proto"
	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store"
)

func (g *Gateway) handlePollCreate(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.PollCreateRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" || len(req.Options) < 2 {
		g.replyErr(connID, "question and at least two options required")
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	now := time.Now()
	pollID := fmt.Sprintf("poll-%d-%s", now.Unix(), first8(state.UserID))
	poll := &store.Poll{
		PollID:    pollID,
		Question:  strings.TrimSpace(req.Question),
		CreatedBy: state.UserID,
		CreatedAt: now.Unix(),
	}
	for i, text := range req.Options {
		poll.Options = append(poll.Options, store.PollOption{
			OptionID: fmt.Sprintf("%s-opt-%d", pollID, i),
			Text:     text,
			Index:    i,
		})
	}

	if storageRoom, ok := g.storageRoomID(ctx, state.UserID, roomID); ok {
		poll.RoomID = storageRoom
		if err := g.store.CreatePoll(ctx, poll); err != nil {
			g.log.Warn().Err(err).Str("poll_id", pollID).Msg("poll not persisted")
		}
	}

	wire := pollFrom(poll)
	g.fanRoomScoped(ctx, state, roomID, func(viewRoomID string) any {
		p := wire
		p.RoomID = viewRoomID
		return proto.PollCreatedEvent{Type: proto.KindPollCreated, RoomID: viewRoomID, Poll: p}
	})
}

func (g *Gateway) handlePollVote(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.PollVoteRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.PollID == "" || req.OptionID == "" {
		g.replyErr(connID, "pollId and optionId required")
		return
	}

	poll, err := g.store.GetPoll(ctx, req.PollID)
	if err != nil {
		g.replyErr(connID, "poll not found")
		return
	}
	if poll.IsClosed {
		g.replyErr(connID, "poll is closed")
		return
	}

	err = g.store.VotePoll(ctx, store.PollVote{
		PollID:   req.PollID,
		OptionID: req.OptionID,
		UserID:   state.UserID,
		Username: state.Username,
	})
	if err != nil {
		g.log.Warn().Err(err).Str("poll_id", req.PollID).Msg("vote not persisted")
	}

	roomID := req.RoomID
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}
	g.fanRoomScoped(ctx, state, roomID, func(viewRoomID string) any {
		return proto.PollVoteEvent{
			Type:     proto.KindPollVote,
			PollID:   req.PollID,
			OptionID: req.OptionID,
			RoomID:   viewRoomID,
			UserID:   state.UserID,
			Username: state.Username,
		}
	})
}

func (g *Gateway) handlePollClose(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.PollCloseRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	poll, err := g.store.GetPoll(ctx, req.PollID)
	if err != nil {
		g.replyErr(connID, "poll not found")
		return
	}
	if poll.CreatedBy != state.UserID {
		g.replyErr(connID, "only the poll creator can close it")
		return
	}
	if err := g.store.ClosePoll(ctx, req.PollID); err != nil {
		g.log.Warn().Err(err).Str("poll_id", req.PollID).Msg("poll close not persisted")
	}

	ev := proto.PollClosedEvent{Type: proto.KindPollClosed, PollID: req.PollID}
	g.deliver.SendToUser(state.UserID, ev)
	g.deliver.BroadcastToRoom(ctx, delivery.GlobalRoom, ev, state.UserID)
}

func (g *Gateway) handleGetRoomPolls(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.RoomPollsRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	storageRoom, ok := g.storageRoomID(ctx, state.UserID, roomID)
	if !ok {
		g.replyErr(connID, "room polls unavailable")
		return
	}
	stored, err := g.store.ListRoomPolls(ctx, storageRoom, req.ActiveOnly)
	if err != nil {
		g.log.Warn().Err(err).Str("room_id", roomID).Msg("room polls unavailable")
		g.replyErr(connID, "room polls unavailable")
		return
	}

	polls := pollsFrom(stored)
	for i := range polls {
		polls[i].RoomID = roomID
	}
	g.reply(connID, proto.RoomPollsEvent{Type: proto.KindRoomPolls, RoomID: roomID, Polls: polls})
}

// fanRoomScoped delivers an event whose payload embeds a room id, building a
// per-recipient payload so direct rooms keep viewer-relative addressing: the
// sender sees dm_<peer>, the peer sees dm_<sender>.
func (g *Gateway) fanRoomScoped(ctx context.Context, state registry.State, roomID string, build func(viewRoomID string) any) {
	if dm.IsDirect(roomID) {
		peerID := dm.PeerFromRoomID(roomID)
		g.deliver.SendToUser(state.UserID, build(roomID))
		g.deliver.SendToUser(peerID, build(dm.ViewerRoomID(state.UserID)))
		return
	}
	ev := build(roomID)
	g.deliver.SendToUser(state.UserID, ev)
	g.deliver.BroadcastToRoom(ctx, roomID, ev, state.UserID)
}
