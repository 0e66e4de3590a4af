// Package broker publishes chat events to an external message bus so other
// services (archival, moderation, push) can consume room traffic without
// touching the socket layer.
package broker

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Broker publishes a room event. Publishing is fire-and-forget: a failed
// publish is logged by the implementation and never blocks delivery.
type Broker interface {
	PublishRoomEvent(roomID string, payload any)
	Close()
}

// NATS publishes room events on the subject "chat.<roomId>".
type NATS struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// ConnectNATS dials the NATS server at url.
func ConnectNATS(url string, logger zerolog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("chatbox-server"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn, log: logger}, nil
}

func (n *NATS) PublishRoomEvent(roomID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Str("room_id", roomID).Msg("broker: marshal failed")
		return
	}
	if err := n.conn.Publish("chat."+roomID, data); err != nil {
		n.log.Warn().Err(err).Str("room_id", roomID).Msg("broker: publish failed")
	}
}

func (n *NATS) Close() {
	n.conn.Drain()
}

// Noop discards all events. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishRoomEvent(string, any) {}
func (Noop) Close()                       {}
