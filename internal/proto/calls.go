package proto

// Call signaling frames. Every frame carries the callId plus enough sender
// identity for the client to render it without extra lookups.

type CallIncomingEvent struct {
	Type       Kind   `json:"type"`
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId"`
	CallerName string `json:"callerName"`
	CallType   string `json:"callType"`
}

type CallInitResponse struct {
	Type    Kind   `json:"type"`
	Success bool   `json:"success"`
	CallID  string `json:"callId"`
	Message string `json:"message"`
}

type CallAcceptedEvent struct {
	Type         Kind   `json:"type"`
	CallID       string `json:"callId"`
	AccepterID   string `json:"accepterId"`
	AccepterName string `json:"accepterName"`
}

type CallRejectedEvent struct {
	Type       Kind   `json:"type"`
	CallID     string `json:"callId"`
	RejecterID string `json:"rejecterId"`
	Reason     string `json:"reason"`
}

type CallEndedEvent struct {
	Type    Kind   `json:"type"`
	CallID  string `json:"callId"`
	EndedBy string `json:"endedBy"`
}

// WebRTCSignalEvent relays offers, answers and ICE candidates between the two
// call parties; sdp/candidate contents are opaque here.
type WebRTCSignalEvent struct {
	Type      Kind   `json:"type"`
	CallID    string `json:"callId"`
	FromID    string `json:"fromId"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}
