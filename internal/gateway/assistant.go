package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chatbox-im/chatbox-server/internal/proto"
	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store"
)

const (
	aiUserID      = "ai-assistant"
	aiUsername    = "ChatBox AI"
	aiCallTimeout = 30 * time.Second
)

// aiJob is one queued assistant request. toRoom jobs post the answer as a
// chat message into roomID; direct jobs reply on the requester's session.
type aiJob struct {
	sessionID string
	userID    string
	roomID    string
	prompt    string
	toRoom    bool
}

func (g *Gateway) handleAIRequest(connID string, state registry.State, frame proto.Frame) {
	var req proto.AIRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		g.replyErr(connID, "message required")
		return
	}

	g.enqueueAI(connID, state, aiJob{
		sessionID: state.SessionID,
		userID:    state.UserID,
		prompt:    req.Message,
	})
}

// enqueueAI hands a job to the worker pool. A full queue is reported to the
// requester instead of blocking the read loop.
func (g *Gateway) enqueueAI(connID string, state registry.State, job aiJob) {
	select {
	case g.aiJobs <- job:
	default:
		g.log.Warn().Str("user_id", state.UserID).Msg("assistant queue full")
		g.reply(connID, proto.AIErrorEvent{Type: proto.KindAIError, Error: "assistant is busy, try again later"})
	}
}

// runAIWorker drains the job queue. Workers are the only background
// execution context; they re-enter delivery through the same registry lock
// as the read loops.
func (g *Gateway) runAIWorker() {
	defer g.aiWG.Done()
	for job := range g.aiJobs {
		g.serveAIJob(job)
	}
}

func (g *Gateway) serveAIJob(job aiJob) {
	ctx, cancel := context.WithTimeout(context.Background(), aiCallTimeout)
	defer cancel()

	answer, err := g.ai.Complete(ctx, job.prompt)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", job.userID).Msg("assistant request failed")
		g.deliver.SendToSession(job.sessionID, proto.AIErrorEvent{
			Type:  proto.KindAIError,
			Error: "assistant unavailable",
		})
		return
	}

	if !job.toRoom {
		g.deliver.SendToSession(job.sessionID, proto.AIResponseEvent{
			Type:     proto.KindAIResponse,
			Response: answer,
		})
		return
	}

	// Room-scoped answer becomes a regular chat message from the assistant.
	ev := proto.ChatEvent{
		Type:      proto.KindChat,
		MessageID: newMessageID("msg", aiUserID),
		RoomID:    job.roomID,
		UserID:    aiUserID,
		Username:  aiUsername,
		Content:   answer,
		Timestamp: time.Now().UnixMilli(),
	}
	g.deliver.SendToSession(job.sessionID, ev)
	g.deliver.BroadcastToRoom(ctx, job.roomID, ev, job.userID)

	if storageRoom, ok := g.storageRoomID(ctx, job.userID, job.roomID); ok {
		err := g.store.SaveMessage(ctx, &store.Message{
			MessageID:  ev.MessageID,
			RoomID:     storageRoom,
			SenderID:   aiUserID,
			SenderName: aiUsername,
			Content:    answer,
			Timestamp:  ev.Timestamp / 1000,
		})
		if err != nil {
			g.log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("assistant message not persisted")
		}
	}
}

func (g *Gateway) handleUpload(connID string, state registry.State, frame proto.Frame) {
	var handler func(string, string, json.RawMessage) (any, error)
	switch frame.Kind {
	case proto.KindUploadInit:
		handler = g.uploads.OnUploadInit
	case proto.KindUploadChunk:
		handler = g.uploads.OnUploadChunk
	default:
		handler = g.uploads.OnUploadFinalize
	}

	resp, err := handler(connID, state.UserID, frame.Raw)
	if err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if resp != nil {
		g.reply(connID, resp)
	}
}
