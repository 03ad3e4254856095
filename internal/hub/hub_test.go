package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/robalobadob/wordle-live/internal/protocol"
)

type received struct {
	room   string
	intent protocol.Intent
}

// newTestServer upgrades /ws?room=..&actor=.. and registers with h.
func newTestServer(t *testing.T, h *Hub, intents chan<- received) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		_ = h.Register(ws, q.Get("room"), q.Get("actor"), func(roomID string, in protocol.Intent) {
			intents <- received{room: roomID, intent: in}
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, room, actor string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=" + room + "&actor=" + actor
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitCount(t *testing.T, h *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count(room) != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count(%q) = %d, want %d", room, h.Count(room), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := ws.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestBroadcastAndToActor(t *testing.T) {
	h := New()
	defer h.Close()
	srv := newTestServer(t, h, make(chan received, 8))

	alice := dial(t, srv, "r1", "alice")
	bob := dial(t, srv, "r1", "bob")
	other := dial(t, srv, "r2", "carol")
	waitCount(t, h, "r1", 2)
	waitCount(t, h, "r2", 1)

	if err := h.ToActor("r1", "bob", protocol.NewValidation("Not enough letters")); err != nil {
		t.Fatal(err)
	}
	if err := h.Broadcast("r1", map[string]string{"type": "gameState"}); err != nil {
		t.Fatal(err)
	}

	// Bob sees his validation first, then the broadcast.
	if got := readJSON(t, bob); got["type"] != "validation" || got["message"] != "Not enough letters" {
		t.Errorf("bob first message = %v", got)
	}
	if got := readJSON(t, bob); got["type"] != "gameState" {
		t.Errorf("bob second message = %v", got)
	}
	// Alice only sees the broadcast.
	if got := readJSON(t, alice); got["type"] != "gameState" {
		t.Errorf("alice message = %v", got)
	}

	// Room r2 received nothing.
	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("connection in another room received a message")
	}
}

func TestInboundIntentsUseConnectionIdentity(t *testing.T) {
	h := New()
	defer h.Close()
	intents := make(chan received, 8)
	srv := newTestServer(t, h, intents)

	ws := dial(t, srv, "r1", "alice")
	waitCount(t, h, "r1", 1)

	for _, raw := range []string{
		`{"type":"addLetter","letter":"q","actor":"mallory"}`,
		`{"type":"nonsense"}`,
		`{"type":"submitWord"}`,
	} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatal(err)
		}
	}

	var got []received
	for len(got) < 2 {
		select {
		case r := <-intents:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d intents, want 2", len(got))
		}
	}
	want := []received{
		{room: "r1", intent: protocol.Intent{Type: protocol.TypeAddLetter, Letter: "q", Actor: "alice"}},
		{room: "r1", intent: protocol.Intent{Type: protocol.TypeSubmitWord, Actor: "alice"}},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(received{})); diff != "" {
		t.Errorf("intents (-want +got)\n%s", diff)
	}
}

func TestUnregisterAndCloseRoom(t *testing.T) {
	h := New()
	defer h.Close()
	srv := newTestServer(t, h, make(chan received, 8))

	a := dial(t, srv, "r1", "alice")
	b := dial(t, srv, "r1", "bob")
	waitCount(t, h, "r1", 2)

	_ = a.Close()
	waitCount(t, h, "r1", 1)

	h.CloseRoom("r1")
	waitCount(t, h, "r1", 0)

	// The remaining client observes a close frame.
	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := b.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
		t.Errorf("read after CloseRoom: err = %v, want close frame", err)
	}
}

func TestClosedHub(t *testing.T) {
	h := New()
	h.Close()
	h.Close()
	if err := h.Broadcast("r1", "x"); err != ErrClosed {
		t.Errorf("Broadcast after Close: err = %v", err)
	}
	if err := h.ToActor("r1", "a", "x"); err != ErrClosed {
		t.Errorf("ToActor after Close: err = %v", err)
	}
	if n := h.Count("r1"); n != 0 {
		t.Errorf("Count after Close = %d", n)
	}
}
