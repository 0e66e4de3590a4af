// Package calls tracks 1:1 call signaling state and relays WebRTC frames
// between the two parties. The server never touches media; it only forwards
// offers, answers and candidates.
package calls

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/proto"
)

// Call lifecycle states. There is no ringing timeout: an unanswered call
// stays ringing until one side sends reject or end, or disconnects.
const (
	StateRinging = "ringing"
	StateActive  = "active"
)

var (
	// ErrTargetOffline is returned when the callee has no live connection.
	ErrTargetOffline = errors.New("calls: target user is offline")
	// ErrNotFound is returned for operations on an unknown call id.
	ErrNotFound = errors.New("calls: call not found")
	// ErrNotParticipant is returned when a user acts on a call they are not in.
	ErrNotParticipant = errors.New("calls: user is not a participant")
)

// UserSender delivers a frame to all live connections of one user.
type UserSender interface {
	SendToUser(userID string, payload any) bool
}

// Call is one active or ringing call.
type Call struct {
	CallID     string
	CallerID   string
	CallerName string
	CalleeID   string
	CallType   string
	State      string
	StartedAt  time.Time
}

// Manager owns the call table. All methods are safe for concurrent use.
type Manager struct {
	sender UserSender
	log    zerolog.Logger

	mu    sync.Mutex
	calls map[string]*Call
}

// NewManager creates an empty call manager.
func NewManager(sender UserSender, logger zerolog.Logger) *Manager {
	return &Manager{
		sender: sender,
		log:    logger,
		calls:  make(map[string]*Call),
	}
}

// Init starts a call and rings the target. Returns the new call id.
func (m *Manager) Init(callerID, callerName, targetID, callType string) (string, error) {
	if targetID == "" || targetID == callerID {
		return "", fmt.Errorf("calls: invalid target %q", targetID)
	}
	if callType == "" {
		callType = "audio"
	}

	callID := fmt.Sprintf("call-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
	call := &Call{
		CallID:     callID,
		CallerID:   callerID,
		CallerName: callerName,
		CalleeID:   targetID,
		CallType:   callType,
		State:      StateRinging,
		StartedAt:  time.Now(),
	}

	delivered := m.sender.SendToUser(targetID, proto.CallIncomingEvent{
		Type:       proto.KindCallIncoming,
		CallID:     callID,
		CallerID:   callerID,
		CallerName: callerName,
		CallType:   callType,
	})
	if !delivered {
		return "", ErrTargetOffline
	}

	m.mu.Lock()
	m.calls[callID] = call
	m.mu.Unlock()

	m.log.Info().Str("call_id", callID).Str("caller", callerID).
		Str("callee", targetID).Str("call_type", callType).Msg("call initiated")
	return callID, nil
}

// Accept moves a ringing call to active and notifies the caller.
func (m *Manager) Accept(callID, accepterID, accepterName string) error {
	m.mu.Lock()
	call, ok := m.calls[callID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if call.CalleeID != accepterID {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	call.State = StateActive
	callerID := call.CallerID
	m.mu.Unlock()

	m.sender.SendToUser(callerID, proto.CallAcceptedEvent{
		Type:         proto.KindCallAccepted,
		CallID:       callID,
		AccepterID:   accepterID,
		AccepterName: accepterName,
	})
	m.log.Info().Str("call_id", callID).Msg("call accepted")
	return nil
}

// Reject ends a ringing call and notifies the caller.
func (m *Manager) Reject(callID, rejecterID, reason string) error {
	m.mu.Lock()
	call, ok := m.calls[callID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if call.CalleeID != rejecterID && call.CallerID != rejecterID {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	delete(m.calls, callID)
	callerID := call.CallerID
	m.mu.Unlock()

	m.sender.SendToUser(callerID, proto.CallRejectedEvent{
		Type:       proto.KindCallRejected,
		CallID:     callID,
		RejecterID: rejecterID,
		Reason:     reason,
	})
	m.log.Info().Str("call_id", callID).Str("reason", reason).Msg("call rejected")
	return nil
}

// End terminates a call and notifies the other party.
func (m *Manager) End(callID, endedBy string) error {
	m.mu.Lock()
	call, ok := m.calls[callID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if call.CallerID != endedBy && call.CalleeID != endedBy {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	delete(m.calls, callID)
	other := call.CallerID
	if endedBy == call.CallerID {
		other = call.CalleeID
	}
	m.mu.Unlock()

	m.sender.SendToUser(other, proto.CallEndedEvent{
		Type:    proto.KindCallEnded,
		CallID:  callID,
		EndedBy: endedBy,
	})
	m.log.Info().Str("call_id", callID).Str("ended_by", endedBy).Msg("call ended")
	return nil
}

// RelaySignal forwards a WebRTC frame (offer, answer or ICE candidate) to the
// other participant, stamped with the sender's id.
func (m *Manager) RelaySignal(kind proto.Kind, fromID string, req proto.WebRTCSignalRequest) error {
	m.mu.Lock()
	call, ok := m.calls[req.CallID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if call.CallerID != fromID && call.CalleeID != fromID {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	target := call.CallerID
	if fromID == call.CallerID {
		target = call.CalleeID
	}
	m.mu.Unlock()

	m.sender.SendToUser(target, proto.WebRTCSignalEvent{
		Type:      kind,
		CallID:    req.CallID,
		FromID:    fromID,
		SDP:       req.SDP,
		Candidate: req.Candidate,
	})
	return nil
}

// EndAllFor tears down every call a disconnecting user participates in,
// notifying the remaining party.
func (m *Manager) EndAllFor(userID string) {
	m.mu.Lock()
	var dropped []*Call
	for id, call := range m.calls {
		if call.CallerID == userID || call.CalleeID == userID {
			delete(m.calls, id)
			dropped = append(dropped, call)
		}
	}
	m.mu.Unlock()

	for _, call := range dropped {
		other := call.CallerID
		if userID == call.CallerID {
			other = call.CalleeID
		}
		m.sender.SendToUser(other, proto.CallEndedEvent{
			Type:    proto.KindCallEnded,
			CallID:  call.CallID,
			EndedBy: userID,
		})
		m.log.Info().Str("call_id", call.CallID).Str("user_id", userID).
			Msg("call ended by disconnect")
	}
}

// Get returns a snapshot of one call.
func (m *Manager) Get(callID string) (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[callID]
	if !ok {
		return Call{}, false
	}
	return *call, true
}
