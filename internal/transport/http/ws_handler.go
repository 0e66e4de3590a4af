package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/gateway"
)

// outboundQueueSize bounds the per-connection send queue. A client that
// cannot keep up loses frames instead of stalling fan-out.
const outboundQueueSize = 256

// wsSender bridges the registry's Sender to the connection's write loop.
type wsSender struct {
	ch chan []byte
}

func (s *wsSender) TrySend(payload []byte) bool {
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

// WSHandler upgrades HTTP connections and bridges them to the gateway.
type WSHandler struct {
	gw  *gateway.Gateway
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(gw *gateway.Gateway, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{gw: gw, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sender := &wsSender{ch: make(chan []byte, outboundQueueSize)}
	connID := h.gw.HandleConnect(sender)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Disconnect side effects must run with a live context even when the
	// request context is already torn down.
	defer h.gw.HandleDisconnect(context.Background(), connID)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, connID)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sender)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", connID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, connID string) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		h.gw.HandleFrame(ctx, connID, data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sender *wsSender) error {
	for {
		select {
		case payload := <-sender.ch:
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
