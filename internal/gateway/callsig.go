package gateway

import (
	"errors"

	"github.com/chatbox-im/chatbox-server/internal/calls"
	"github.com/chatbox-im/chatbox-server/internal/proto"
	"github.com/chatbox-im/chatbox-server/internal/registry"
)

func (g *Gateway) handleCallInit(connID string, state registry.State, frame proto.Frame) {
	var req proto.CallInitRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	callID, err := g.calls.Init(state.UserID, state.Username, req.TargetID, req.CallType)
	if err != nil {
		msg := "call failed"
		if errors.Is(err, calls.ErrTargetOffline) {
			msg = "user is offline"
		}
		g.reply(connID, proto.CallInitResponse{
			Type:    proto.KindCallInitResponse,
			Success: false,
			Message: msg,
		})
		return
	}
	g.reply(connID, proto.CallInitResponse{
		Type:    proto.KindCallInitResponse,
		Success: true,
		CallID:  callID,
	})
}

func (g *Gateway) handleCallAccept(connID string, state registry.State, frame proto.Frame) {
	var req proto.CallAcceptRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	if err := g.calls.Accept(req.CallID, state.UserID, state.Username); err != nil {
		g.reply(connID, proto.Ack{Type: proto.KindCallAcceptResponse, Success: false, Message: callErrMessage(err)})
		return
	}
	g.reply(connID, proto.Ack{Type: proto.KindCallAcceptResponse, Success: true})
}

func (g *Gateway) handleCallReject(connID string, state registry.State, frame proto.Frame) {
	var req proto.CallRejectRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	if err := g.calls.Reject(req.CallID, state.UserID, req.Reason); err != nil {
		g.reply(connID, proto.Ack{Type: proto.KindCallRejectResponse, Success: false, Message: callErrMessage(err)})
		return
	}
	g.reply(connID, proto.Ack{Type: proto.KindCallRejectResponse, Success: true})
}

func (g *Gateway) handleCallEnd(connID string, state registry.State, frame proto.Frame) {
	var req proto.CallEndRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	if err := g.calls.End(req.CallID, state.UserID); err != nil {
		g.reply(connID, proto.Ack{Type: proto.KindCallEndResponse, Success: false, Message: callErrMessage(err)})
		return
	}
	g.reply(connID, proto.Ack{Type: proto.KindCallEndResponse, Success: true})
}

func (g *Gateway) handleWebRTCSignal(connID string, state registry.State, frame proto.Frame) {
	var req proto.WebRTCSignalRequest
	if err := frame.Payload(&req); err != nil {
		g.replyErr(connID, err.Error())
		return
	}

	if err := g.calls.RelaySignal(frame.Kind, state.UserID, req); err != nil {
		g.replyErr(connID, callErrMessage(err))
	}
}

func callErrMessage(err error) string {
	switch {
	case errors.Is(err, calls.ErrNotFound):
		return "call not found"
	case errors.Is(err, calls.ErrNotParticipant):
		return "not a participant of this call"
	default:
		return "call signaling failed"
	}
}
