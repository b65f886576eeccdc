package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/majlischat/majlis-server/internal/auth"
	"github.com/majlischat/majlis-server/internal/blob"
	"github.com/majlischat/majlis-server/internal/config"
	"github.com/majlischat/majlis-server/internal/core"
	"github.com/majlischat/majlis-server/internal/proto"
	"github.com/majlischat/majlis-server/internal/store"
	"github.com/majlischat/majlis-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	auth  *auth.Service
	store store.Store
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// startTestEnv brings up the whole stack on an in-memory database with
// default permissions and an ephemeral upload directory.
func startTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	blobs, err := blob.NewStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	hub := core.NewHub(st, nil, core.Options{Room: "testroom"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, authService, st, blobs, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, nil)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, store: st}
}

// dialAndHello connects a WebSocket client, introduces it, and returns
// the connection together with its snapshot.
func dialAndHello(ctx context.Context, t *testing.T, env *testEnv, hello proto.HelloData) (*websocket.Conn, proto.EventSnapshotData) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	sendInbound(ctx, t, conn, proto.InboundTypeHello, hello)

	outbound := readOutbound(ctx, t, conn)
	if outbound.Type != proto.OutboundTypeEvent || outbound.Event != proto.EventSnapshot {
		t.Fatalf("expected snapshot, got %+v", outbound)
	}
	var snap proto.EventSnapshotData
	mustUnmarshal(t, outbound.Data, &snap)
	return conn, snap
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func sendInbound(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func readOutbound(ctx context.Context, t *testing.T, conn *websocket.Conn) rawOutbound {
	t.Helper()
	var out rawOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return out
}

// awaitEvent reads until the named event arrives, skipping unrelated
// broadcasts (joins, queue updates).
func awaitEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) rawOutbound {
	t.Helper()
	for i := 0; i < 20; i++ {
		out := readOutbound(ctx, t, conn)
		if out.Type == proto.OutboundTypeEvent && out.Event == event {
			return out
		}
	}
	t.Fatalf("event %q never arrived", event)
	return rawOutbound{}
}

// awaitError reads until an error frame arrives.
func awaitError(ctx context.Context, t *testing.T, conn *websocket.Conn) *proto.Error {
	t.Helper()
	for i := 0; i < 20; i++ {
		out := readOutbound(ctx, t, conn)
		if out.Type == proto.OutboundTypeError && out.Error != nil {
			return out.Error
		}
	}
	t.Fatal("error frame never arrived")
	return nil
}

func mustUnmarshal(t *testing.T, data json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
}
