package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/chatbox-im/chatbox-server/internal/auth"
	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/proto"
	"github.com/chatbox-im/chatbox-server/internal/registry"
)

func sessionIDFor(userID string) string {
	return "ws-session-" + userID
}

func (g *Gateway) handleRegister(ctx context.Context, connID string, frame proto.Frame) {
	var req proto.RegisterRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	ident, err := g.auth.Register(ctx, req.Username, req.Password, req.Email)
	if err != nil {
		g.reply(connID, proto.LoginResponse{
			Type:    proto.KindRegisterResponse,
			Success: false,
			Message: registerErrMessage(err),
		})
		return
	}

	g.log.Info().Str("user_id", ident.UserID).Str("username", ident.Username).Msg("user registered")
	g.reply(connID, proto.LoginResponse{
		Type:     proto.KindRegisterResponse,
		Success:  true,
		Token:    ident.Token,
		UserID:   ident.UserID,
		Username: ident.Username,
		Message:  "registered",
	})
}

func registerErrMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return "username already taken"
	case errors.Is(err, auth.ErrInvalidUsername):
		return "username must be 3-32 characters"
	case errors.Is(err, auth.ErrInvalidPassword):
		return "password must be at least 6 characters"
	default:
		return "registration failed"
	}
}

func (g *Gateway) handleLogin(ctx context.Context, connID string, frame proto.Frame) {
	var req proto.LoginRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	ident, err := g.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		g.reply(connID, proto.LoginResponse{
			Type:    proto.KindLoginResponse,
			Success: false,
			Message: "invalid credentials",
		})
		return
	}

	g.promote(ctx, connID, ident)
	g.reply(connID, proto.LoginResponse{
		Type:     proto.KindLoginResponse,
		Success:  true,
		Token:    ident.Token,
		UserID:   ident.UserID,
		Username: ident.Username,
		Avatar:   ident.Avatar,
		Message:  "welcome",
	})
	g.sendGlobalHistory(ctx, connID)
}

func (g *Gateway) handleAuth(ctx context.Context, connID string, frame proto.Frame) {
	var req proto.AuthRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	ident, err := g.auth.ResolveToken(ctx, req.Token)
	if err != nil {
		g.reply(connID, proto.AuthResponse{Type: proto.KindAuthResponse, Success: false})
		return
	}

	g.promote(ctx, connID, ident)
	g.reply(connID, proto.AuthResponse{
		Type:     proto.KindAuthResponse,
		Success:  true,
		UserID:   ident.UserID,
		Username: ident.Username,
	})
	// Reconnecting clients get the roster without asking.
	g.handleGetOnlineUsers(ctx, connID)
}

// promote marks the connection authenticated and runs the shared
// login-time side effects: online status, join announcement.
func (g *Gateway) promote(ctx context.Context, connID string, ident *auth.Identity) {
	if err := g.reg.Authenticate(connID, ident.UserID, ident.Username, sessionIDFor(ident.UserID)); err != nil {
		g.log.Warn().Err(err).Str("conn_id", connID).Msg("authenticate failed")
		return
	}
	g.log.Info().Str("conn_id", connID).Str("user_id", ident.UserID).Msg("connection authenticated")

	if err := g.store.UpdateUserStatus(ctx, ident.UserID, true); err != nil {
		g.log.Warn().Err(err).Str("user_id", ident.UserID).Msg("online status not persisted")
	}
	g.deliver.BroadcastToRoom(ctx, delivery.GlobalRoom, proto.UserJoinedEvent{
		Type:     proto.KindUserJoined,
		UserID:   ident.UserID,
		Username: ident.Username,
	}, ident.UserID)
}

func (g *Gateway) sendGlobalHistory(ctx context.Context, connID string) {
	msgs, err := g.store.ListRoomMessages(ctx, delivery.GlobalRoom, historyLimit)
	if err != nil {
		g.log.Warn().Err(err).Msg("global history unavailable")
		return
	}
	g.reply(connID, proto.HistoryEvent{
		Type:     proto.KindHistory,
		RoomID:   delivery.GlobalRoom,
		Messages: historyFrom(msgs, delivery.GlobalRoom),
	})
}

func (g *Gateway) handleTyping(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.TypingRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	g.deliver.BroadcastToRoom(ctx, delivery.GlobalRoom, proto.TypingEvent{
		Type:     proto.KindTyping,
		UserID:   state.UserID,
		Username: state.Username,
		IsTyping: req.IsTyping,
	}, state.UserID)
}

func (g *Gateway) handlePresenceUpdate(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.PresenceUpdateRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}
	if req.Status == "" {
		g.replyErr(connID, "status required")
		return
	}

	g.deliver.BroadcastToRoom(ctx, delivery.GlobalRoom, proto.PresenceEvent{
		Type:     proto.KindPresenceUpdate,
		UserID:   state.UserID,
		Username: state.Username,
		Status:   req.Status,
	}, state.UserID)

	if err := g.store.UpdateUserStatus(ctx, state.UserID, req.Status != "offline"); err != nil {
		g.log.Warn().Err(err).Str("user_id", state.UserID).Msg("presence not persisted")
	}
}

func (g *Gateway) handleGetOnlineUsers(ctx context.Context, connID string) {
	seen := map[string]bool{}
	var users []proto.OnlineUser
	for _, st := range g.reg.Snapshot() {
		if !st.Authenticated || seen[st.UserID] {
			continue
		}
		seen[st.UserID] = true
		users = append(users, proto.OnlineUser{
			UserID:   st.UserID,
			Username: st.Username,
			Online:   true,
			Status:   "online",
		})
	}
	if users == nil {
		users = []proto.OnlineUser{}
	}
	g.reply(connID, proto.OnlineUsersEvent{Type: proto.KindOnlineUsers, Users: users})
}

func (g *Gateway) handleProfileUpdate(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.ProfileUpdateRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	if err := g.store.UpdateProfile(ctx, state.UserID, req.DisplayName, req.StatusMessage, req.Avatar); err != nil {
		g.log.Warn().Err(err).Str("user_id", state.UserID).Msg("profile update failed")
		g.reply(connID, proto.Ack{Type: proto.KindProfileUpdateResponse, Success: false, Message: "profile update failed"})
		return
	}

	g.reply(connID, proto.Ack{Type: proto.KindProfileUpdateResponse, Success: true})
	g.deliver.BroadcastToRoom(ctx, delivery.GlobalRoom, proto.ProfileUpdatedEvent{
		Type:          proto.KindProfileUpdated,
		UserID:        state.UserID,
		DisplayName:   req.DisplayName,
		StatusMessage: req.StatusMessage,
		Avatar:        req.Avatar,
	}, state.UserID)
}

func (g *Gateway) handleChangePassword(ctx context.Context, connID string, state registry.State, frame proto.Frame) {
	var req proto.ChangePasswordRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	if err := g.auth.ChangePassword(ctx, state.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		msg := "password change failed"
		if errors.Is(err, auth.ErrInvalidCredentials) {
			msg = "current password is incorrect"
		} else if errors.Is(err, auth.ErrInvalidPassword) {
			msg = "new password must be at least 6 characters"
		}
		g.reply(connID, proto.Ack{Type: proto.KindChangePasswordResp, Success: false, Message: msg})
		return
	}
	g.reply(connID, proto.Ack{Type: proto.KindChangePasswordResp, Success: true})
}

func unixMilli(sec int64) int64 {
	return sec * int64(time.Second/time.Millisecond)
}
