// Package gateway is the protocol dispatcher: it owns the per-connection
// state machine (unauthenticated to authenticated, no downgrade), decodes
// each inbound frame once and routes it to a handler. Handlers validate,
// make at most one persistence call, then deliver; persistence failures are
// logged and never block delivery.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/ai"
	"github.com/chatbox-im/chatbox-server/internal/auth"
	"github.com/chatbox-im/chatbox-server/internal/broker"
	"github.com/chatbox-im/chatbox-server/internal/calls"
	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/proto"
	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store"
	"github.com/chatbox-im/chatbox-server/internal/uploads"
)

const historyLimit = 50

// Deps are the collaborators the gateway routes between.
type Deps struct {
	Registry *registry.Registry
	Delivery *delivery.Engine
	Auth     *auth.Service
	Store    store.Store
	Calls    *calls.Manager
	Broker   broker.Broker
	AI       ai.Client
	Uploads  uploads.Coordinator
	Logger   zerolog.Logger

	// AIWorkers is the number of background assistant workers; the job
	// queue holds 4x that many requests before rejecting.
	AIWorkers int
}

// Gateway dispatches inbound frames for all connections.
type Gateway struct {
	reg     *registry.Registry
	deliver *delivery.Engine
	auth    *auth.Service
	store   store.Store
	calls   *calls.Manager
	broker  broker.Broker
	ai      ai.Client
	uploads uploads.Coordinator
	log     zerolog.Logger

	aiJobs chan aiJob
	aiWG   sync.WaitGroup

	// mu guards the ephemeral game and watch-party tables.
	mu      sync.Mutex
	games   map[string]*gameState
	watches map[string]*watchSession
}

// New creates a gateway and starts its assistant workers.
func New(d Deps) *Gateway {
	workers := d.AIWorkers
	if workers <= 0 {
		workers = 1
	}
	if d.Broker == nil {
		d.Broker = broker.Noop{}
	}
	if d.AI == nil {
		d.AI = ai.Disabled{}
	}
	if d.Uploads == nil {
		d.Uploads = uploads.Disabled{}
	}

	g := &Gateway{
		reg:     d.Registry,
		deliver: d.Delivery,
		auth:    d.Auth,
		store:   d.Store,
		calls:   d.Calls,
		broker:  d.Broker,
		ai:      d.AI,
		uploads: d.Uploads,
		log:     d.Logger,
		aiJobs:  make(chan aiJob, workers*4),
		games:   make(map[string]*gameState),
		watches: make(map[string]*watchSession),
	}

	for i := 0; i < workers; i++ {
		g.aiWG.Add(1)
		go g.runAIWorker()
	}
	return g
}

// Close stops the assistant workers after draining queued jobs.
func (g *Gateway) Close() {
	close(g.aiJobs)
	g.aiWG.Wait()
}

// HandleConnect registers a new transport connection and returns its handle.
func (g *Gateway) HandleConnect(sender registry.Sender) string {
	id := g.reg.Open(sender)
	g.log.Debug().Str("conn_id", id).Msg("connection opened")
	return id
}

// HandleDisconnect runs disconnect side effects exactly once: the registry
// close is the gate, so a duplicate call is a no-op.
func (g *Gateway) HandleDisconnect(ctx context.Context, connID string) {
	state, closed := g.reg.Close(connID)
	if !closed {
		return
	}
	g.log.Debug().Str("conn_id", connID).Str("user_id", state.UserID).Msg("connection closed")
	if !state.Authenticated {
		return
	}

	g.calls.EndAllFor(state.UserID)

	g.deliver.Broadcast(proto.PresenceEvent{
		Type:     proto.KindPresenceUpdate,
		UserID:   state.UserID,
		Username: state.Username,
		Status:   "offline",
	})
	if err := g.store.UpdateUserStatus(ctx, state.UserID, false); err != nil {
		g.log.Warn().Err(err).Str("user_id", state.UserID).Msg("offline status not persisted")
	}
}

// HandleFrame decodes and dispatches one inbound frame. Protocol faults are
// reported as error frames; the connection always stays open.
func (g *Gateway) HandleFrame(ctx context.Context, connID string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Str("conn_id", connID).Interface("panic", r).Msg("handler panicked")
			g.replyErr(connID, "internal error")
		}
	}()

	frame, err := proto.Decode(data)
	if err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	state, ok := g.reg.Get(connID)
	if !ok {
		return
	}

	switch frame.Kind {
	case proto.KindPing:
		g.reply(connID, proto.Pong{Type: proto.KindPong, Timestamp: time.Now().UnixMilli()})
		return
	case proto.KindRegister:
		g.handleRegister(ctx, connID, frame)
		return
	case proto.KindLogin:
		g.handleLogin(ctx, connID, frame)
		return
	case proto.KindAuth:
		g.handleAuth(ctx, connID, frame)
		return
	}

	if !state.Authenticated {
		g.replyErr(connID, "authentication required")
		return
	}

	switch frame.Kind {
	case proto.KindChat:
		g.handleChat(ctx, connID, state, frame)
	case proto.KindChatSticker:
		g.handleSticker(ctx, connID, state, frame)
	case proto.KindChatLocation:
		g.handleLocation(ctx, connID, state, frame)
	case proto.KindTyping:
		g.handleTyping(ctx, connID, state, frame)
	case proto.KindPresenceUpdate:
		g.handlePresenceUpdate(ctx, connID, state, frame)
	case proto.KindGetOnlineUsers:
		g.handleGetOnlineUsers(ctx, connID)
	case proto.KindEditMessage:
		g.handleEditMessage(ctx, connID, state, frame)
	case proto.KindDeleteMessage:
		g.handleDeleteMessage(ctx, connID, state, frame)
	case proto.KindReplyMessage:
		g.handleReplyMessage(ctx, connID, state, frame)
	case proto.KindForwardMessage:
		g.handleForwardMessage(ctx, connID, state, frame)
	case proto.KindAddReaction:
		g.handleAddReaction(ctx, connID, state, frame)
	case proto.KindPinMessage:
		g.handlePin(ctx, connID, state, frame, true)
	case proto.KindUnpinMessage:
		g.handlePin(ctx, connID, state, frame, false)
	case proto.KindMarkRead:
		g.handleMarkRead(ctx, connID, state, frame)
	case proto.KindSearchMessages:
		g.handleSearchMessages(ctx, connID, frame)
	case proto.KindCreateRoom:
		g.handleCreateRoom(ctx, connID, state, frame)
	case proto.KindJoinRoom:
		g.handleJoinRoom(ctx, connID, state, frame)
	case proto.KindLeaveRoom:
		g.handleLeaveRoom(ctx, connID, state, frame)
	case proto.KindGetRooms:
		g.handleGetRooms(ctx, connID, state)
	case proto.KindInviteUser:
		g.handleInviteUser(ctx, connID, state, frame)
	case proto.KindKickUser:
		g.handleKickUser(ctx, connID, state, frame)
	case proto.KindUserBlock:
		g.handleBlock(ctx, connID, state, frame, true)
	case proto.KindUserUnblock:
		g.handleBlock(ctx, connID, state, frame, false)
	case proto.KindGetBlockedUsers:
		g.handleGetBlockedUsers(ctx, connID, state)
	case proto.KindProfileUpdate:
		g.handleProfileUpdate(ctx, connID, state, frame)
	case proto.KindChangePassword:
		g.handleChangePassword(ctx, connID, state, frame)
	case proto.KindAIRequest:
		g.handleAIRequest(connID, state, frame)
	case proto.KindPollCreate:
		g.handlePollCreate(ctx, connID, state, frame)
	case proto.KindPollVote:
		g.handlePollVote(ctx, connID, state, frame)
	case proto.KindPollClose:
		g.handlePollClose(ctx, connID, state, frame)
	case proto.KindGetRoomPolls:
		g.handleGetRoomPolls(ctx, connID, state, frame)
	case proto.KindGameInvite:
		g.handleGameInvite(connID, state, frame)
	case proto.KindGameAccept:
		g.handleGameAccept(connID, state, frame)
	case proto.KindGameReject:
		g.handleGameReject(connID, state, frame)
	case proto.KindGameMove:
		g.handleGameMove(connID, state, frame)
	case proto.KindWatchCreate:
		g.handleWatchCreate(ctx, connID, state, frame)
	case proto.KindWatchSync:
		g.handleWatchSync(ctx, connID, state, frame)
	case proto.KindWatchEnd:
		g.handleWatchEnd(ctx, connID, state)
	case proto.KindCallInit:
		g.handleCallInit(connID, state, frame)
	case proto.KindCallAccept:
		g.handleCallAccept(connID, state, frame)
	case proto.KindCallReject:
		g.handleCallReject(connID, state, frame)
	case proto.KindCallEnd:
		g.handleCallEnd(connID, state, frame)
	case proto.KindWebRTCOffer, proto.KindWebRTCAnswer, proto.KindWebRTCICE:
		g.handleWebRTCSignal(connID, state, frame)
	case proto.KindUploadInit, proto.KindUploadChunk, proto.KindUploadFinalize:
		g.handleUpload(connID, state, frame)
	default:
		g.replyErr(connID, fmt.Sprintf("unknown message type: %s", frame.Kind))
	}
}

// reply sends a frame back on the requesting connection only.
func (g *Gateway) reply(connID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.log.Error().Err(err).Str("conn_id", connID).Msg("reply marshal failed")
		return
	}
	if !g.reg.SendTo(connID, data) {
		g.log.Debug().Str("conn_id", connID).Msg("reply dropped")
	}
}

func (g *Gateway) replyErr(connID, message string) {
	g.reply(connID, proto.NewError(message))
}

// first8 shortens a user id for embedding in message ids.
func first8(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func newMessageID(prefix, userID string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().Unix(), first8(userID))
}
