package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/auth"
	"github.com/chatbox-im/chatbox-server/internal/broker"
	"github.com/chatbox-im/chatbox-server/internal/calls"
	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store/sqlite"
)

// recordingSender captures outbound frames; safe for the AI workers that
// write from background goroutines.
type recordingSender struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (s *recordingSender) TrySend(payload []byte) bool {
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		return false
	}
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	return true
}

func (s *recordingSender) ofKind(kind string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, f := range s.frames {
		if f["type"] == kind {
			out = append(out, f)
		}
	}
	return out
}

func (s *recordingSender) waitForKind(t *testing.T, kind string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := s.ofKind(kind); len(frames) > 0 {
			return frames[len(frames)-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q frame arrived", kind)
	return nil
}

type stubAI struct{ answer string }

func (s stubAI) Complete(_ context.Context, prompt string) (string, error) {
	return s.answer, nil
}

type testEnv struct {
	t  *testing.T
	gw *Gateway
	st *sqlite.Store
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	reg := registry.New()
	deliver := delivery.New(reg, st, zerolog.Nop())

	gw := New(Deps{
		Registry:  reg,
		Delivery:  deliver,
		Auth:      auth.NewService(st, jwtConfig),
		Store:     st,
		Calls:     calls.NewManager(deliver, zerolog.Nop()),
		Broker:    broker.Noop{},
		AI:        stubAI{answer: "42"},
		Logger:    zerolog.Nop(),
		AIWorkers: 1,
	})
	t.Cleanup(gw.Close)

	return &testEnv{t: t, gw: gw, st: st}
}

type client struct {
	connID string
	sender *recordingSender
	userID string
}

func (e *testEnv) connect() *client {
	sender := &recordingSender{}
	return &client{connID: e.gw.HandleConnect(sender), sender: sender}
}

func (e *testEnv) send(c *client, frame map[string]any) {
	e.t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		e.t.Fatalf("marshal frame: %v", err)
	}
	e.gw.HandleFrame(context.Background(), c.connID, data)
}

// loginNew registers a fresh account on the connection and logs it in.
func (e *testEnv) loginNew(c *client, username string) {
	e.t.Helper()
	e.send(c, map[string]any{"type": "register", "username": username, "password": "password123"})
	reg := e.sendLast(c, "register_response")
	if reg["success"] != true {
		e.t.Fatalf("register failed: %+v", reg)
	}
	e.send(c, map[string]any{"type": "login", "username": username, "password": "password123"})
	login := e.sendLast(c, "login_response")
	if login["success"] != true {
		e.t.Fatalf("login failed: %+v", login)
	}
	c.userID, _ = login["userId"].(string)
	if c.userID == "" {
		e.t.Fatal("login response missing userId")
	}
}

func (e *testEnv) sendLast(c *client, kind string) map[string]any {
	e.t.Helper()
	frames := c.sender.ofKind(kind)
	if len(frames) == 0 {
		e.t.Fatalf("no %q frame", kind)
	}
	return frames[len(frames)-1]
}

func TestUnauthenticatedFramesRejectedButConnectionStaysOpen(t *testing.T) {
	e := newEnv(t)
	c := e.connect()

	e.send(c, map[string]any{"type": "chat", "content": "hi"})
	errFrame := e.sendLast(c, "error")
	if errFrame["message"] != "authentication required" {
		t.Fatalf("error = %+v", errFrame)
	}

	// Ping is always allowed and proves the connection survived.
	e.send(c, map[string]any{"type": "ping"})
	e.sendLast(c, "pong")
}

func TestUnknownTypeIsAnErrorReply(t *testing.T) {
	e := newEnv(t)
	c := e.connect()
	e.loginNew(c, "alice")

	e.send(c, map[string]any{"type": "no_such_kind"})
	errFrame := e.sendLast(c, "error")
	if errFrame["message"] != "unknown message type: no_such_kind" {
		t.Fatalf("error = %+v", errFrame)
	}
}

func TestGlobalChatEchoAndFanOut(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "chat", "content": "hello room"})

	echo := e.sendLast(alice, "chat")
	if echo["content"] != "hello room" || echo["roomId"] != "global" {
		t.Fatalf("echo = %+v", echo)
	}
	got := e.sendLast(bob, "chat")
	if got["content"] != "hello room" || got["userId"] != alice.userID {
		t.Fatalf("bob's copy = %+v", got)
	}

	// Persisted after delivery.
	msgs, err := e.st.ListRoomMessages(context.Background(), "global", 10)
	if err != nil || len(msgs) != 1 || msgs[0].Content != "hello room" {
		t.Fatalf("persisted = %+v, %v", msgs, err)
	}
}

func TestDirectMessageViewerRelativeAddressing(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "chat", "content": "psst", "roomId": "dm_" + bob.userID})

	echo := e.sendLast(alice, "chat")
	if echo["roomId"] != "dm_"+bob.userID {
		t.Fatalf("alice sees roomId %v", echo["roomId"])
	}
	got := e.sendLast(bob, "chat")
	if got["roomId"] != "dm_"+alice.userID {
		t.Fatalf("bob sees roomId %v, want dm_%s", got["roomId"], alice.userID)
	}

	// Stored once under the canonical conversation id, not a viewer id.
	conv, err := e.st.GetOrCreateDMConversation(context.Background(), alice.userID, bob.userID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	msgs, err := e.st.ListRoomMessages(context.Background(), conv, 10)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("dm persisted = %+v, %v", msgs, err)
	}
}

func TestDMBlockedSenderGetsError(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(bob, map[string]any{"type": "user_block", "targetUserId": alice.userID})
	e.sendLast(bob, "user_blocked")

	e.send(alice, map[string]any{"type": "chat", "content": "psst", "roomId": "dm_" + bob.userID})
	errFrame := e.sendLast(alice, "error")
	if errFrame["message"] != "you are blocked by this user" {
		t.Fatalf("error = %+v", errFrame)
	}
	if frames := bob.sender.ofKind("chat"); len(frames) != 0 {
		t.Fatalf("blocked dm delivered: %+v", frames)
	}
}

func TestDMPollViewerRelativeFanOut(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{
		"type":     "poll_create",
		"roomId":   "dm_" + bob.userID,
		"question": "lunch?",
		"options":  []string{"pizza", "sushi"},
	})

	mine := e.sendLast(alice, "poll_created")
	if mine["roomId"] != "dm_"+bob.userID {
		t.Fatalf("creator sees roomId %v", mine["roomId"])
	}
	theirs := e.sendLast(bob, "poll_created")
	if theirs["roomId"] != "dm_"+alice.userID {
		t.Fatalf("peer sees roomId %v, want dm_%s", theirs["roomId"], alice.userID)
	}
}

func TestDMWatchSessionSharedAcrossViewerRooms(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "join_room", "roomId": "dm_" + bob.userID})
	e.send(bob, map[string]any{"type": "join_room", "roomId": "dm_" + alice.userID})

	e.send(alice, map[string]any{
		"type":     "watch_create",
		"roomId":   "dm_" + bob.userID,
		"videoUrl": "https://example.com/v.mp4",
	})
	created := e.sendLast(bob, "watch_session_created")
	if created["roomId"] != "dm_"+alice.userID {
		t.Fatalf("peer sees roomId %v, want dm_%s", created["roomId"], alice.userID)
	}

	// Both sides address the same session even though each views its own room id.
	e.send(bob, map[string]any{"type": "watch_sync", "action": "pause", "time": 12.5})
	if got := e.sendLast(alice, "watch_sync"); got["action"] != "pause" {
		t.Fatalf("watch_sync at creator = %+v", got)
	}
	e.send(alice, map[string]any{"type": "watch_sync", "action": "play", "time": 13.0})
	if got := e.sendLast(bob, "watch_sync"); got["action"] != "play" {
		t.Fatalf("watch_sync at peer = %+v", got)
	}

	e.send(bob, map[string]any{"type": "watch_end"})
	e.sendLast(alice, "watch_ended")
	e.sendLast(bob, "watch_ended")
}

func TestRoomListAlwaysIncludesGlobal(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	e.loginNew(alice, "alice")

	e.send(alice, map[string]any{"type": "get_rooms"})
	list := e.sendLast(alice, "room_list")
	rooms, _ := list["rooms"].([]any)
	if len(rooms) != 1 {
		t.Fatalf("rooms = %+v", list["rooms"])
	}
	global, _ := rooms[0].(map[string]any)
	if global["roomId"] != "global" || global["roomName"] != "Global Chat" {
		t.Fatalf("first room = %+v", global)
	}

	e.send(alice, map[string]any{"type": "create_room", "name": "general"})
	e.send(alice, map[string]any{"type": "get_rooms"})
	list = e.sendLast(alice, "room_list")
	rooms, _ = list["rooms"].([]any)
	if len(rooms) != 2 {
		t.Fatalf("rooms after create = %+v", list["rooms"])
	}
	if first, _ := rooms[0].(map[string]any); first["roomId"] != "global" {
		t.Fatalf("global not first: %+v", first)
	}
}

func TestRoomLifecycle(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "create_room", "name": "general"})
	created := e.sendLast(alice, "room_created")
	roomID, _ := created["roomId"].(string)
	if roomID == "" {
		t.Fatalf("room_created = %+v", created)
	}

	e.send(bob, map[string]any{"type": "join_room", "roomId": roomID})
	joined := e.sendLast(bob, "room_joined")
	if joined["memberCount"].(float64) != 2 {
		t.Fatalf("room_joined = %+v", joined)
	}
	// Creator is a member and hears about the join.
	e.sendLast(alice, "user_joined_room")

	e.send(bob, map[string]any{"type": "chat", "content": "room msg", "roomId": roomID})
	got := e.sendLast(alice, "chat")
	if got["roomId"] != roomID || got["content"] != "room msg" {
		t.Fatalf("alice's room copy = %+v", got)
	}

	e.send(bob, map[string]any{"type": "leave_room", "roomId": roomID})
	left := e.sendLast(bob, "room_left")
	if left["success"] != true {
		t.Fatalf("room_left = %+v", left)
	}
}

func TestCallLifecycle(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "call_init", "targetId": bob.userID, "callType": "video"})
	initResp := e.sendLast(alice, "call_init_response")
	if initResp["success"] != true {
		t.Fatalf("call_init_response = %+v", initResp)
	}
	callID, _ := initResp["callId"].(string)

	incoming := e.sendLast(bob, "call_incoming")
	if incoming["callId"] != callID || incoming["callerName"] != "alice" {
		t.Fatalf("call_incoming = %+v", incoming)
	}

	e.send(bob, map[string]any{"type": "call_accept", "callId": callID})
	accepted := e.sendLast(alice, "call_accepted")
	if accepted["accepterName"] != "bob" {
		t.Fatalf("call_accepted = %+v", accepted)
	}

	e.send(alice, map[string]any{"type": "webrtc_offer", "callId": callID, "sdp": "offer"})
	offer := e.sendLast(bob, "webrtc_offer")
	if offer["sdp"] != "offer" || offer["fromId"] != alice.userID {
		t.Fatalf("webrtc_offer = %+v", offer)
	}

	e.send(bob, map[string]any{"type": "call_end", "callId": callID})
	ended := e.sendLast(alice, "call_ended")
	if ended["endedBy"] != bob.userID {
		t.Fatalf("call_ended = %+v", ended)
	}
}

func TestCallToOfflineUserFails(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	e.loginNew(alice, "alice")

	e.send(alice, map[string]any{"type": "call_init", "targetId": "u-ghost"})
	resp := e.sendLast(alice, "call_init_response")
	if resp["success"] != false || resp["message"] != "user is offline" {
		t.Fatalf("call_init_response = %+v", resp)
	}
}

func TestDisconnectBroadcastsOfflineExactlyOnce(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.gw.HandleDisconnect(context.Background(), alice.connID)
	e.gw.HandleDisconnect(context.Background(), alice.connID)

	var offline []map[string]any
	for _, f := range bob.sender.ofKind("presence_update") {
		if f["status"] == "offline" && f["userId"] == alice.userID {
			offline = append(offline, f)
		}
	}
	if len(offline) != 1 {
		t.Fatalf("got %d offline broadcasts, want 1", len(offline))
	}
}

func TestAIRequestAnsweredOnRequesterSession(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "ai_request", "message": "meaning of life?"})

	resp := alice.sender.waitForKind(t, "ai_response")
	if resp["response"] != "42" {
		t.Fatalf("ai_response = %+v", resp)
	}
	if frames := bob.sender.ofKind("ai_response"); len(frames) != 0 {
		t.Fatalf("ai_response leaked to another user: %+v", frames)
	}
}

func TestAIMentionInChatAnswersIntoRoom(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "chat", "content": "@ai what is up"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range bob.sender.ofKind("chat") {
			if f["userId"] == aiUserID && f["content"] == "42" {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("assistant answer never reached the room")
}

func TestEditMessageOnlyBySender(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "chat", "content": "original"})
	msgID := e.sendLast(alice, "chat")["messageId"].(string)

	e.send(bob, map[string]any{"type": "edit_message", "messageId": msgID, "newContent": "hacked"})
	errFrame := e.sendLast(bob, "error")
	if errFrame["message"] != "cannot edit message" {
		t.Fatalf("error = %+v", errFrame)
	}

	e.send(alice, map[string]any{"type": "edit_message", "messageId": msgID, "newContent": "fixed"})
	edited := e.sendLast(bob, "message_edited")
	if edited["newContent"] != "fixed" {
		t.Fatalf("message_edited = %+v", edited)
	}
}

func TestGameInviteAcceptMove(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "game_invite", "opponentId": bob.userID})
	invite := e.sendLast(bob, "game_invite")
	gameID := invite["gameId"].(string)

	e.send(bob, map[string]any{"type": "game_accept", "gameId": gameID})
	start := e.sendLast(alice, "game_start")
	game := start["game"].(map[string]any)
	if game["currentTurn"] != alice.userID {
		t.Fatalf("game_start = %+v", start)
	}

	// Bob cannot move first.
	e.send(bob, map[string]any{"type": "game_move", "gameId": gameID, "position": 0})
	if e.sendLast(bob, "error")["message"] != "not your turn" {
		t.Fatal("out-of-turn move accepted")
	}

	e.send(alice, map[string]any{"type": "game_move", "gameId": gameID, "position": 4})
	move := e.sendLast(bob, "game_move")
	if move["position"].(float64) != 4 || move["playerId"] != alice.userID {
		t.Fatalf("game_move = %+v", move)
	}
}

func TestOnlineUsersRoster(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	e.send(alice, map[string]any{"type": "get_online_users"})
	roster := e.sendLast(alice, "online_users")
	users := roster["users"].([]any)
	if len(users) != 2 {
		t.Fatalf("roster = %+v", roster)
	}
}

func TestPersistenceFailureDoesNotBlockDelivery(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	bob := e.connect()
	e.loginNew(alice, "alice")
	e.loginNew(bob, "bob")

	// Closing the store makes every persistence call fail.
	e.st.Close()

	e.send(alice, map[string]any{"type": "chat", "content": "still delivered"})
	got := e.sendLast(bob, "chat")
	if got["content"] != "still delivered" {
		t.Fatalf("bob's copy = %+v", got)
	}
}

func TestHistorySentOnLogin(t *testing.T) {
	e := newEnv(t)
	alice := e.connect()
	e.loginNew(alice, "alice")
	e.send(alice, map[string]any{"type": "chat", "content": fmt.Sprintf("hello %d", 1)})

	late := e.connect()
	e.loginNew(late, "bob")
	history := e.sendLast(late, "history")
	msgs := history["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("history = %+v", history)
	}
}
