package dm

import "testing"

func TestConversationIDOrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"u-0001", "u-0002"},
		{"u-zzzz", "u-aaaa"},
		{"alice", "bob"},
		{"u-1", "u-10"},
	}

	for _, p := range pairs {
		ab := ConversationID(p[0], p[1])
		ba := ConversationID(p[1], p[0])
		if ab != ba {
			t.Errorf("ConversationID(%q,%q)=%q but reversed=%q", p[0], p[1], ab, ba)
		}
		if again := ConversationID(p[0], p[1]); again != ab {
			t.Errorf("ConversationID not stable: %q then %q", ab, again)
		}
		if !IsDirect(ab) {
			t.Errorf("canonical id %q lost dm_ prefix", ab)
		}
	}
}

func TestConversationIDDistinctPairs(t *testing.T) {
	a := ConversationID("u-1", "u-2")
	b := ConversationID("u-1", "u-3")
	if a == b {
		t.Fatalf("distinct pairs collided: %q", a)
	}
}

func TestViewerRelativeAddressing(t *testing.T) {
	room := ViewerRoomID("u-42")
	if room != "dm_u-42" {
		t.Fatalf("ViewerRoomID = %q", room)
	}
	if !IsDirect(room) {
		t.Fatalf("IsDirect(%q) = false", room)
	}
	if peer := PeerFromRoomID(room); peer != "u-42" {
		t.Fatalf("PeerFromRoomID = %q", peer)
	}
	if IsDirect("global") || IsDirect("dm_") {
		t.Fatal("IsDirect accepted non-DM room id")
	}
}
