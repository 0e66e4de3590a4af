package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/auth"
	"github.com/chatbox-im/chatbox-server/internal/broker"
	"github.com/chatbox-im/chatbox-server/internal/calls"
	"github.com/chatbox-im/chatbox-server/internal/config"
	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/gateway"
	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	reg := registry.New()
	deliver := delivery.New(reg, st, logger)
	gw := gateway.New(gateway.Deps{
		Registry: reg,
		Delivery: deliver,
		Auth:     authService,
		Store:    st,
		Calls:    calls.NewManager(deliver, logger),
		Broker:   broker.Noop{},
		Logger:   logger,
	})
	t.Cleanup(gw.Close)

	cfg := config.Default()
	server := NewServer(gw, authService, st, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func writeFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := stdhttp.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRestRegisterThenSocketAuth(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "password123"})
	resp, err := stdhttp.Post(ts.URL+"/api/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post /api/register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	var reg AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	writeFrame(t, ctx, conn, map[string]any{"type": "auth", "token": reg.Token})
	authResp := readFrame(t, ctx, conn)
	if authResp["type"] != "auth_response" || authResp["success"] != true {
		t.Fatalf("auth_response = %+v", authResp)
	}
	// Reconnect auth auto-sends the roster.
	roster := readFrame(t, ctx, conn)
	if roster["type"] != "online_users" {
		t.Fatalf("expected online_users, got %+v", roster)
	}
}

func TestSocketLoginAndChatRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	writeFrame(t, ctx, conn, map[string]any{"type": "register", "username": "alice", "password": "password123"})
	if f := readFrame(t, ctx, conn); f["success"] != true {
		t.Fatalf("register_response = %+v", f)
	}
	writeFrame(t, ctx, conn, map[string]any{"type": "login", "username": "alice", "password": "password123"})
	if f := readFrame(t, ctx, conn); f["type"] != "login_response" || f["success"] != true {
		t.Fatalf("login_response = %+v", f)
	}
	// Login is followed by global history.
	if f := readFrame(t, ctx, conn); f["type"] != "history" {
		t.Fatalf("expected history, got %+v", f)
	}

	writeFrame(t, ctx, conn, map[string]any{"type": "chat", "content": "round trip"})
	echo := readFrame(t, ctx, conn)
	if echo["type"] != "chat" || echo["content"] != "round trip" {
		t.Fatalf("echo = %+v", echo)
	}
}

func TestMeRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := stdhttp.Get(ts.URL + "/api/me")
	if err != nil {
		t.Fatalf("get /api/me: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
