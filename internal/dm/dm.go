// Package dm derives direct-message conversation identity.
//
// Two id schemes coexist on purpose. On the wire a DM room is always addressed
// relative to the viewer as "dm_<otherUserId>": A sees dm_B while B sees dm_A.
// In storage both sides converge on one canonical conversation id derived from
// the unordered user pair, so either participant's persistence call reaches the
// same record without a coordination round trip. The viewer-relative id is never
// a storage key and the canonical id never appears on the wire.
package dm

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const roomPrefix = "dm_"

// ConversationID maps an unordered user pair to a stable canonical id.
// ConversationID(a, b) == ConversationID(b, a) for all pairs.
func ConversationID(userA, userB string) string {
	first, second := userA, userB
	if second < first {
		first, second = second, first
	}

	sum := sha256.Sum256([]byte(first + "\x00" + second))
	return roomPrefix + hex.EncodeToString(sum[:8])
}

// IsDirect reports whether roomID uses viewer-relative DM addressing.
func IsDirect(roomID string) bool {
	return strings.HasPrefix(roomID, roomPrefix) && len(roomID) > len(roomPrefix)
}

// PeerFromRoomID extracts the other participant from a viewer-relative room id.
func PeerFromRoomID(roomID string) string {
	return strings.TrimPrefix(roomID, roomPrefix)
}

// ViewerRoomID returns the room id under which viewer addresses a DM with peer.
func ViewerRoomID(peerID string) string {
	return roomPrefix + peerID
}
