// Package uploads defines the chunked-upload coordinator boundary. The
// routing core only forwards the three control frames; transfer mechanics
// (chunk assembly, storage, resumption) live behind the interface.
package uploads

import (
	"encoding/json"
	"errors"
)

// ErrUnavailable is returned when no upload backend is configured.
var ErrUnavailable = errors.New("uploads: upload backend not configured")

// Coordinator handles upload control frames for one user. The payload is the
// raw frame body; the coordinator owns its shape. A returned frame, if any,
// is sent back on the requesting connection.
type Coordinator interface {
	OnUploadInit(connID, userID string, payload json.RawMessage) (any, error)
	OnUploadChunk(connID, userID string, payload json.RawMessage) (any, error)
	OnUploadFinalize(connID, userID string, payload json.RawMessage) (any, error)
}

// Disabled rejects every upload frame with ErrUnavailable.
type Disabled struct{}

func (Disabled) OnUploadInit(string, string, json.RawMessage) (any, error) {
	return nil, ErrUnavailable
}

func (Disabled) OnUploadChunk(string, string, json.RawMessage) (any, error) {
	return nil, ErrUnavailable
}

func (Disabled) OnUploadFinalize(string, string, json.RawMessage) (any, error) {
	return nil, ErrUnavailable
}
