package calls

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/proto"
)

type fakeSender struct {
	online map[string]bool
	sent   map[string][]any
}

func newFakeSender(online ...string) *fakeSender {
	f := &fakeSender{online: map[string]bool{}, sent: map[string][]any{}}
	for _, id := range online {
		f.online[id] = true
	}
	return f
}

func (f *fakeSender) SendToUser(userID string, payload any) bool {
	if !f.online[userID] {
		return false
	}
	f.sent[userID] = append(f.sent[userID], payload)
	return true
}

func TestInitRingsTarget(t *testing.T) {
	sender := newFakeSender("u-callee")
	m := NewManager(sender, zerolog.Nop())

	callID, err := m.Init("u-caller", "alice", "u-callee", "video")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if callID == "" {
		t.Fatal("empty call id")
	}

	frames := sender.sent["u-callee"]
	if len(frames) != 1 {
		t.Fatalf("callee got %d frames", len(frames))
	}
	inc, ok := frames[0].(proto.CallIncomingEvent)
	if !ok || inc.CallID != callID || inc.CallerName != "alice" || inc.CallType != "video" {
		t.Fatalf("incoming frame = %+v", frames[0])
	}

	call, ok := m.Get(callID)
	if !ok || call.State != StateRinging {
		t.Fatalf("call state = %+v, %v", call, ok)
	}
}

func TestInitOfflineTarget(t *testing.T) {
	m := NewManager(newFakeSender(), zerolog.Nop())

	if _, err := m.Init("u-caller", "alice", "u-callee", "audio"); !errors.Is(err, ErrTargetOffline) {
		t.Fatalf("expected ErrTargetOffline, got %v", err)
	}
}

func TestInitRejectsSelfCall(t *testing.T) {
	m := NewManager(newFakeSender("u-a"), zerolog.Nop())

	if _, err := m.Init("u-a", "alice", "u-a", "audio"); err == nil {
		t.Fatal("self call accepted")
	}
}

func TestAcceptLifecycle(t *testing.T) {
	sender := newFakeSender("u-caller", "u-callee")
	m := NewManager(sender, zerolog.Nop())

	callID, err := m.Init("u-caller", "alice", "u-callee", "audio")
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	// Only the callee may accept.
	if err := m.Accept(callID, "u-stranger", "eve"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger accept err = %v", err)
	}

	if err := m.Accept(callID, "u-callee", "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	call, _ := m.Get(callID)
	if call.State != StateActive {
		t.Fatalf("state after accept = %q", call.State)
	}

	frames := sender.sent["u-caller"]
	if len(frames) != 1 {
		t.Fatalf("caller got %d frames", len(frames))
	}
	if acc, ok := frames[0].(proto.CallAcceptedEvent); !ok || acc.AccepterName != "bob" {
		t.Fatalf("accepted frame = %+v", frames[0])
	}
}

func TestRejectRemovesCall(t *testing.T) {
	sender := newFakeSender("u-caller", "u-callee")
	m := NewManager(sender, zerolog.Nop())

	callID, _ := m.Init("u-caller", "alice", "u-callee", "audio")
	if err := m.Reject(callID, "u-callee", "busy"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, ok := m.Get(callID); ok {
		t.Fatal("rejected call still tracked")
	}
	frames := sender.sent["u-caller"]
	if rej, ok := frames[len(frames)-1].(proto.CallRejectedEvent); !ok || rej.Reason != "busy" {
		t.Fatalf("rejected frame = %+v", frames[len(frames)-1])
	}

	if err := m.Reject(callID, "u-callee", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double reject err = %v", err)
	}
}

func TestEndNotifiesOtherParty(t *testing.T) {
	sender := newFakeSender("u-caller", "u-callee")
	m := NewManager(sender, zerolog.Nop())

	callID, _ := m.Init("u-caller", "alice", "u-callee", "audio")
	_ = m.Accept(callID, "u-callee", "bob")

	if err := m.End(callID, "u-caller"); err != nil {
		t.Fatalf("end: %v", err)
	}

	frames := sender.sent["u-callee"]
	ended, ok := frames[len(frames)-1].(proto.CallEndedEvent)
	if !ok || ended.EndedBy != "u-caller" {
		t.Fatalf("ended frame = %+v", frames[len(frames)-1])
	}
	if _, ok := m.Get(callID); ok {
		t.Fatal("ended call still tracked")
	}
}

func TestRelaySignalRoutesToOtherParty(t *testing.T) {
	sender := newFakeSender("u-caller", "u-callee")
	m := NewManager(sender, zerolog.Nop())

	callID, _ := m.Init("u-caller", "alice", "u-callee", "audio")

	err := m.RelaySignal(proto.KindWebRTCOffer, "u-caller", proto.WebRTCSignalRequest{
		CallID: callID,
		SDP:    "offer-sdp",
	})
	if err != nil {
		t.Fatalf("relay offer: %v", err)
	}
	frames := sender.sent["u-callee"]
	sig, ok := frames[len(frames)-1].(proto.WebRTCSignalEvent)
	if !ok || sig.FromID != "u-caller" || sig.SDP != "offer-sdp" {
		t.Fatalf("signal frame = %+v", frames[len(frames)-1])
	}

	// Answer flows back the other way.
	err = m.RelaySignal(proto.KindWebRTCAnswer, "u-callee", proto.WebRTCSignalRequest{
		CallID: callID,
		SDP:    "answer-sdp",
	})
	if err != nil {
		t.Fatalf("relay answer: %v", err)
	}
	back := sender.sent["u-caller"]
	if sig, ok := back[len(back)-1].(proto.WebRTCSignalEvent); !ok || sig.SDP != "answer-sdp" {
		t.Fatalf("answer frame = %+v", back[len(back)-1])
	}

	if err := m.RelaySignal(proto.KindWebRTCOffer, "u-stranger", proto.WebRTCSignalRequest{CallID: callID}); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger relay err = %v", err)
	}
}

func TestEndAllForDisconnect(t *testing.T) {
	sender := newFakeSender("u-a", "u-b", "u-c")
	m := NewManager(sender, zerolog.Nop())

	first, _ := m.Init("u-a", "alice", "u-b", "audio")
	second, _ := m.Init("u-c", "carol", "u-a", "audio")

	m.EndAllFor("u-a")

	if _, ok := m.Get(first); ok {
		t.Fatal("first call survived disconnect")
	}
	if _, ok := m.Get(second); ok {
		t.Fatal("second call survived disconnect")
	}

	bFrames := sender.sent["u-b"]
	if ended, ok := bFrames[len(bFrames)-1].(proto.CallEndedEvent); !ok || ended.EndedBy != "u-a" {
		t.Fatalf("b's last frame = %+v", bFrames[len(bFrames)-1])
	}
	cFrames := sender.sent["u-c"]
	if _, ok := cFrames[len(cFrames)-1].(proto.CallEndedEvent); !ok {
		t.Fatalf("c's last frame = %+v", cFrames[len(cFrames)-1])
	}
}
