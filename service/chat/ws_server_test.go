package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"PPGate/service/storage"
	"PPGate/tools/security"
)

func newWSFixture(t *testing.T) (*Server, *httptest.Server, security.Options) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts := security.DefaultOptions([]byte("test-secret"))
	s, err := NewServer(Options{
		GatewayID:      "ws-test",
		PingInterval:   time.Minute,
		PongTimeout:    time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, security.NewVerifier(opts), storage.NewMemMessages(), storage.NewMemObjects(), nil)
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	r.GET("/ws", s.HandleWS)
	hs := httptest.NewServer(r)
	t.Cleanup(func() {
		s.Close()
		hs.Close()
	})
	return s, hs, opts
}

func dial(t *testing.T, hs *httptest.Server, opts security.Options, id security.Identity) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	if !id.IsZero() {
		tok, _, err := security.Generate(opts, id)
		if err != nil {
			t.Fatal(err)
		}
		h.Set("Cookie", "token="+tok)
	}
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, h)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("%s: %v", data, err)
	}
}

func TestWebSocketEndToEnd(t *testing.T) {
	s, hs, opts := newWSFixture(t)

	alice := dial(t, hs, opts, security.Identity{UserID: "u1", Username: "alice"})
	var r RosterFrame
	readJSON(t, alice, &r)
	if len(r.Online) != 1 || r.Online[0].Username != "alice" {
		t.Fatalf("alice roster = %+v", r)
	}

	bob := dial(t, hs, opts, security.Identity{UserID: "u2", Username: "bob"})
	readJSON(t, bob, &r)
	if len(r.Online) != 2 {
		t.Fatalf("bob roster = %+v", r)
	}
	readJSON(t, alice, &r)
	if len(r.Online) != 2 {
		t.Fatalf("alice second roster = %+v", r)
	}

	anon := dial(t, hs, opts, security.Identity{})
	readJSON(t, anon, &r)
	if len(r.Online) != 2 {
		t.Fatalf("anonymous roster = %+v", r)
	}
	readJSON(t, alice, &r)
	readJSON(t, bob, &r)

	// anonymous senders are ignored
	if err := anon.WriteMessage(websocket.TextMessage, []byte(`{"recipientId":"u1","text":"spoof"}`)); err != nil {
		t.Fatal(err)
	}
	if err := bob.WriteMessage(websocket.TextMessage, []byte(`{"recipientId":"u1","text":"hi alice"}`)); err != nil {
		t.Fatal(err)
	}
	var msg OutboundChat
	readJSON(t, alice, &msg)
	if msg.SenderID != "u2" || msg.Text != "hi alice" || msg.MessageID == "" {
		t.Fatalf("alice got %+v", msg)
	}

	_ = bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	readJSON(t, alice, &r)
	if len(r.Online) != 1 || r.Online[0].UserID != "u1" {
		t.Fatalf("roster after bob left = %+v", r)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.ConnMgr().Len() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("registry len = %d", s.ConnMgr().Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	_, hs, _ := newWSFixture(t)
	h := http.Header{}
	h.Set("Origin", "http://evil.example")
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(url, h); err == nil {
		t.Fatal("foreign origin upgraded")
	}
}
