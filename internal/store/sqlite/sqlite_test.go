package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/chatbox-im/chatbox-server/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice", "hash", "alice@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.UserID == "" || u.Username != "alice" {
		t.Fatalf("created user = %+v", u)
	}

	if _, err := s.CreateUser(ctx, "alice", "hash2", ""); err == nil {
		t.Fatal("duplicate username accepted")
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || byName.UserID != u.UserID {
		t.Fatalf("get by username: %+v, %v", byName, err)
	}

	if err := s.UpdateUserStatus(ctx, u.UserID, true); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := s.GetUserByID(ctx, u.UserID)
	if !got.Online {
		t.Fatal("online flag not persisted")
	}

	if err := s.UpdateProfile(ctx, u.UserID, "Alice A", "brb", ""); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	got, _ = s.GetUserByID(ctx, u.UserID)
	if got.DisplayName != "Alice A" || got.StatusMessage != "brb" {
		t.Fatalf("profile = %+v", got)
	}

	if _, err := s.GetUserByID(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing user err = %v", err)
	}
}

func TestSaveMessageIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &store.Message{
		MessageID:  "msg-100-abc",
		RoomID:     "global",
		SenderID:   "u-1",
		SenderName: "alice",
		Content:    "hello",
		Timestamp:  100,
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Replay with the same id must not fail.
	msg.Content = "hello again"
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("replay save: %v", err)
	}

	got, err := s.GetMessage(ctx, "msg-100-abc")
	if err != nil || got.Content != "hello again" {
		t.Fatalf("message = %+v, %v", got, err)
	}
}

func TestListRoomMessagesChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, ts := range []int64{30, 10, 20} {
		msg := &store.Message{
			MessageID: string(rune('a' + i)),
			RoomID:    "global",
			SenderID:  "u-1",
			Content:   "m",
			Timestamp: ts,
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	msgs, err := s.ListRoomMessages(ctx, "global", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Timestamp != 20 || msgs[1].Timestamp != 30 {
		t.Fatalf("expected last two in chronological order, got %+v", msgs)
	}
}

func TestEditAndDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &store.Message{MessageID: "m1", RoomID: "global", SenderID: "u-1", Content: "x", Timestamp: 1}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Only the sender may edit.
	if err := s.EditMessage(ctx, "m1", "u-2", "y"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("edit by non-sender: %v", err)
	}
	if err := s.EditMessage(ctx, "m1", "u-1", "y"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got, _ := s.GetMessage(ctx, "m1")
	if got.Content != "y" || got.EditedAt == 0 {
		t.Fatalf("edited message = %+v", got)
	}

	if err := s.SoftDeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, _ := s.ListRoomMessages(ctx, "global", 10)
	if len(msgs) != 0 {
		t.Fatalf("deleted message still listed: %+v", msgs)
	}
}

func TestSearchMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	save := func(id, room, content string, ts int64) {
		t.Helper()
		err := s.SaveMessage(ctx, &store.Message{
			MessageID: id, RoomID: room, SenderID: "u-1", Content: content, Timestamp: ts,
		})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	save("m1", "global", "hello world", 1)
	save("m2", "room-1", "hello there", 2)
	save("m3", "global", "unrelated", 3)

	all, err := s.SearchMessages(ctx, "hello", "", 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("search all: %d, %v", len(all), err)
	}

	scoped, err := s.SearchMessages(ctx, "hello", "room-1", 10)
	if err != nil || len(scoped) != 1 || scoped[0].MessageID != "m2" {
		t.Fatalf("scoped search: %+v, %v", scoped, err)
	}
}

func TestRoomMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &store.Room{RoomID: "room-1", Name: "general", RoomType: "public", CreatorID: "u-1"}
	if err := s.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	if err := s.AddRoomMember(ctx, "room-1", "u-1", store.RoleOwner); err != nil {
		t.Fatalf("add owner: %v", err)
	}
	if err := s.AddRoomMember(ctx, "room-1", "u-2", ""); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// Re-join is a no-op, not an error.
	if err := s.AddRoomMember(ctx, "room-1", "u-2", store.RoleMember); err != nil {
		t.Fatalf("re-add member: %v", err)
	}

	ids, err := s.ListRoomMemberIDs(ctx, "room-1")
	if err != nil || len(ids) != 2 {
		t.Fatalf("member ids = %v, %v", ids, err)
	}

	role, err := s.GetMemberRole(ctx, "room-1", "u-1")
	if err != nil || role != store.RoleOwner {
		t.Fatalf("owner role = %q, %v", role, err)
	}
	if _, err := s.GetMemberRole(ctx, "room-1", "u-9"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("non-member role err = %v", err)
	}

	rooms, err := s.ListUserRooms(ctx, "u-2")
	if err != nil || len(rooms) != 1 || rooms[0].Room.RoomID != "room-1" {
		t.Fatalf("user rooms = %+v, %v", rooms, err)
	}

	if err := s.RemoveRoomMember(ctx, "room-1", "u-2"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if err := s.RemoveRoomMember(ctx, "room-1", "u-2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("double remove err = %v", err)
	}
}

func TestDMConversationConverges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ab, err := s.GetOrCreateDMConversation(ctx, "u-a", "u-b")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	ba, err := s.GetOrCreateDMConversation(ctx, "u-b", "u-a")
	if err != nil {
		t.Fatalf("reversed call: %v", err)
	}
	if ab != ba {
		t.Fatalf("conversation ids diverged: %q vs %q", ab, ba)
	}

	other, err := s.GetOrCreateDMConversation(ctx, "u-a", "u-c")
	if err != nil || other == ab {
		t.Fatalf("distinct pair id = %q, %v", other, err)
	}
}

func TestPollVoteMovesOnRevote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	poll := &store.Poll{
		PollID:    "poll-1",
		RoomID:    "room-1",
		Question:  "lunch?",
		CreatedBy: "u-1",
		CreatedAt: 100,
		Options: []store.PollOption{
			{OptionID: "opt-1", Text: "pizza", Index: 0},
			{OptionID: "opt-2", Text: "sushi", Index: 1},
		},
	}
	if err := s.CreatePoll(ctx, poll); err != nil {
		t.Fatalf("create poll: %v", err)
	}

	vote := store.PollVote{PollID: "poll-1", OptionID: "opt-1", UserID: "u-2", Username: "bob"}
	if err := s.VotePoll(ctx, vote); err != nil {
		t.Fatalf("vote: %v", err)
	}
	vote.OptionID = "opt-2"
	if err := s.VotePoll(ctx, vote); err != nil {
		t.Fatalf("re-vote: %v", err)
	}

	got, err := s.GetPoll(ctx, "poll-1")
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if got.Options[0].VoteCount != 0 || got.Options[1].VoteCount != 1 {
		t.Fatalf("tallies = %+v", got.Options)
	}
	if got.Options[1].VoterNames[0] != "bob" {
		t.Fatalf("voter names = %v", got.Options[1].VoterNames)
	}

	if err := s.ClosePoll(ctx, "poll-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	active, err := s.ListRoomPolls(ctx, "room-1", true)
	if err != nil || len(active) != 0 {
		t.Fatalf("active polls after close = %+v, %v", active, err)
	}
	all, err := s.ListRoomPolls(ctx, "room-1", false)
	if err != nil || len(all) != 1 || !all[0].IsClosed {
		t.Fatalf("all polls = %+v, %v", all, err)
	}
}

func TestBlockList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.BlockUser(ctx, "u-1", "u-2"); err != nil {
		t.Fatalf("block: %v", err)
	}
	// Blocking twice is a no-op.
	if err := s.BlockUser(ctx, "u-1", "u-2"); err != nil {
		t.Fatalf("double block: %v", err)
	}

	blocked, err := s.ListBlockedUsers(ctx, "u-1")
	if err != nil || len(blocked) != 1 || blocked[0] != "u-2" {
		t.Fatalf("blocked = %v, %v", blocked, err)
	}

	// The block is directional.
	reverse, err := s.ListBlockedUsers(ctx, "u-2")
	if err != nil || len(reverse) != 0 {
		t.Fatalf("reverse blocked = %v, %v", reverse, err)
	}

	if err := s.UnblockUser(ctx, "u-1", "u-2"); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	blocked, _ = s.ListBlockedUsers(ctx, "u-1")
	if len(blocked) != 0 {
		t.Fatalf("blocked after unblock = %v", blocked)
	}
}
