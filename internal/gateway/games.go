package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/dm"
	"github.com/chatbox-im/chatbox-server/internal/proto"
	"github.com/chatbox-im/chatbox-server/internal/registry"
)

// gameState is one in-memory tic-tac-toe game. Games do not survive a
// restart; an interrupted game is simply gone.
type gameState struct {
	id          string
	gameType    string
	inviterID   string
	inviterName string
	accepterID  string
	board       [9]string
	currentTurn string
	status      string // "pending", "active", "finished"
}

func (g *Gateway) handleGameInvite(connID string, state registry.State, frame proto.Frame) {
	var req proto.GameInviteRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.OpponentID == "" || req.OpponentID == state.UserID {
		g.replyErr(connID, "invalid opponent")
		return
	}
	gameType := req.GameType
	if gameType == "" {
		gameType = "tictactoe"
	}

	gameID := fmt.Sprintf("game-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
	delivered := g.deliver.SendToUser(req.OpponentID, proto.GameInviteEvent{
		Type:       proto.KindGameInvite,
		GameID:     gameID,
		GameType:   gameType,
		FromUser:   state.Username,
		FromUserID: state.UserID,
	})
	if !delivered {
		g.replyErr(connID, "opponent is offline")
		return
	}

	g.mu.Lock()
	g.games[gameID] = &gameState{
		id:          gameID,
		gameType:    gameType,
		inviterID:   state.UserID,
		inviterName: state.Username,
		accepterID:  req.OpponentID,
		status:      "pending",
	}
	g.mu.Unlock()
}

func (g *Gateway) handleGameAccept(connID string, state registry.State, frame proto.Frame) {
	var req proto.GameAcceptRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	g.mu.Lock()
	game, ok := g.games[req.GameID]
	if !ok || game.status != "pending" || game.accepterID != state.UserID {
		g.mu.Unlock()
		g.replyErr(connID, "no such game invitation")
		return
	}
	game.status = "active"
	game.currentTurn = game.inviterID
	snapshot := *game
	g.mu.Unlock()

	ev := proto.GameStartEvent{
		Type:   proto.KindGameStart,
		GameID: snapshot.id,
		Game: proto.GameState{
			ID:          snapshot.id,
			Type:        snapshot.gameType,
			Board:       make([]string, 9),
			CurrentTurn: snapshot.currentTurn,
			Players: map[string]string{
				snapshot.inviterID:  "X",
				snapshot.accepterID: "O",
			},
			Status: "active",
		},
	}
	g.deliver.SendToUser(snapshot.inviterID, ev)
	g.deliver.SendToUser(snapshot.accepterID, ev)
}

func (g *Gateway) handleGameReject(connID string, state registry.State, frame proto.Frame) {
	var req proto.GameRejectRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	g.mu.Lock()
	game, ok := g.games[req.GameID]
	if !ok || game.accepterID != state.UserID {
		g.mu.Unlock()
		g.replyErr(connID, "no such game invitation")
		return
	}
	delete(g.games, req.GameID)
	inviterID := game.inviterID
	g.mu.Unlock()

	g.deliver.SendToUser(inviterID, proto.GameRejectedEvent{
		Type:   proto.KindGameRejected,
		GameID: req.GameID,
	})
}

func (g *Gateway) handleGameMove(connID string, state registry.State, frame proto.Frame) {
	var req proto.GameMoveRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.Position < 0 || req.Position > 8 {
		g.replyErr(connID, "position out of range")
		return
	}

	g.mu.Lock()
	game, ok := g.games[req.GameID]
	if !ok || game.status != "active" {
		g.mu.Unlock()
		g.replyErr(connID, "no active game")
		return
	}
	if game.currentTurn != state.UserID {
		g.mu.Unlock()
		g.replyErr(connID, "not your turn")
		return
	}
	if game.board[req.Position] != "" {
		g.mu.Unlock()
		g.replyErr(connID, "cell is taken")
		return
	}

	symbol := "X"
	if state.UserID == game.accepterID {
		symbol = "O"
	}
	game.board[req.Position] = symbol
	if winningMove(game.board, symbol) || boardFull(game.board) {
		game.status = "finished"
		delete(g.games, req.GameID)
	} else {
		game.currentTurn = game.inviterID
		if state.UserID == game.inviterID {
			game.currentTurn = game.accepterID
		}
	}
	inviterID, accepterID := game.inviterID, game.accepterID
	g.mu.Unlock()

	ev := proto.GameMoveEvent{
		Type:     proto.KindGameMove,
		GameID:   req.GameID,
		Position: req.Position,
		PlayerID: state.UserID,
	}
	g.deliver.SendToUser(inviterID, ev)
	g.deliver.SendToUser(accepterID, ev)
}

var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

func winningMove(board [9]string, symbol string) bool {
	for _, line := range winLines {
		if board[line[0]] == symbol && board[line[1]] == symbol && board[line[2]] == symbol {
			return true
		}
	}
	return false
}

func boardFull(board [9]string) bool {
	for _, cell := range board {
		if cell == "" {
			return false
		}
	}
	return true
}

// watchSession is one in-memory watch party per room.
type watchSession struct {
	roomID    string
	videoURL  string
	createdBy string
}

// watchKey resolves the session-table key for a room. Viewer-relative DM ids
// collapse to the canonical pair id so both participants address the same
// session regardless of whose dm_<peer> they are looking at.
func watchKey(userID, roomID string) string {
	if dm.IsDirect(roomID) {
		return dm.ConversationID(userID, dm.PeerFromRoomID(roomID))
	}
	return roomID
}

func (g *Gateway) handleWatchCreate(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.WatchCreateRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.VideoURL == "" {
		g.replyErr(connID, "videoUrl required")
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	key := watchKey(state.UserID, roomID)
	g.mu.Lock()
	g.watches[key] = &watchSession{roomID: key, videoURL: req.VideoURL, createdBy: state.Username}
	g.mu.Unlock()

	g.fanRoomScoped(ctx, state, roomID, func(viewRoomID string) any {
		return proto.WatchSessionEvent{
			Type:      proto.KindWatchSessionCreated,
			RoomID:    viewRoomID,
			VideoURL:  req.VideoURL,
			CreatedBy: state.Username,
		}
	})
}

func (g *Gateway) handleWatchSync(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.WatchSyncRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	roomID := state.CurrentRoom
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	g.mu.Lock()
	_, active := g.watches[watchKey(state.UserID, roomID)]
	g.mu.Unlock()
	if !active {
		g.replyErr(connID, "no watch session in this room")
		return
	}

	ev := proto.WatchSyncEvent{
		Type:     proto.KindWatchSync,
		Action:   req.Action,
		Time:     req.Time,
		SyncedBy: state.Username,
	}
	if dm.IsDirect(roomID) {
		g.deliver.SendToUser(dm.PeerFromRoomID(roomID), ev)
		return
	}
	g.deliver.BroadcastToRoom(ctx, roomID, ev, state.UserID)
}

func (g *Gateway) handleWatchEnd(ctx context.Context, connID string, state registry.State) {
	roomID := state.CurrentRoom
	if roomID == "" {
		roomID = delivery.GlobalRoom
	}

	key := watchKey(state.UserID, roomID)
	g.mu.Lock()
	_, active := g.watches[key]
	delete(g.watches, key)
	g.mu.Unlock()
	if !active {
		g.replyErr(connID, "no watch session in this room")
		return
	}

	ev := proto.WatchEndedEvent{Type: proto.KindWatchEnded}
	g.deliver.SendToUser(state.UserID, ev)
	if dm.IsDirect(roomID) {
		g.deliver.SendToUser(dm.PeerFromRoomID(roomID), ev)
		return
	}
	g.deliver.BroadcastToRoom(ctx, roomID, ev, state.UserID)
}
