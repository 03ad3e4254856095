package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/robalobadob/wordle-live/internal/config"
	"github.com/robalobadob/wordle-live/internal/daily"
	"github.com/robalobadob/wordle-live/internal/game"
	"github.com/robalobadob/wordle-live/internal/hub"
	"github.com/robalobadob/wordle-live/internal/protocol"
	"github.com/robalobadob/wordle-live/internal/room"
	"github.com/robalobadob/wordle-live/internal/store"
	"github.com/robalobadob/wordle-live/internal/words"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:    "test_secret",
		JWTExpiry:    time.Hour,
		CookieName:   "wordle_token",
		CookieKey:    config.DefaultCookieKey,
		ClientOrigin: "http://localhost:5173",
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	lists, err := words.Load(words.Config{Length: 5})
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewMemoryStore()
	h := hub.New()
	ctx, cancel := context.WithCancel(context.Background())
	mgr := room.NewManager(ctx, room.ManagerConfig{
		Visibility: game.RevealOnFinish,
		Words:      lists.RandomAnswer,
		Daily:      daily.Schedule{Salt: "test", Answers: lists.Answers()},
		Publisher:  h,
		History:    st,
		Users:      st,
		Observers:  h.Count,
		OnClose:    h.CloseRoom,
		Now:        fixedClock,
	})
	srv := New(Deps{Config: testConfig(), Rooms: mgr, Hub: h, Store: st, Words: lists, Now: fixedClock})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		mgr.Shutdown()
		cancel()
		h.Close()
	})
	return ts
}

// player is an HTTP client with its own cookie jar, i.e. its own actor.
type player struct {
	t    *testing.T
	base string
	c    *http.Client
}

func newPlayer(t *testing.T, ts *httptest.Server) *player {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &player{t: t, base: ts.URL, c: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

func (p *player) do(method, path string, body any, out any) int {
	p.t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, p.base+path, rd)
	if err != nil {
		p.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := p.c.Do(req)
	if err != nil {
		p.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			p.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode
}

func (p *player) createRoom(answer string) string {
	p.t.Helper()
	var res createRoomRes
	if code := p.do(http.MethodPost, "/rooms", createRoomReq{Answer: answer}, &res); code != http.StatusCreated {
		p.t.Fatalf("create room: status %d", code)
	}
	return res.RoomID
}

func (p *player) typeWord(roomID, word string) {
	p.t.Helper()
	for _, c := range word {
		if code := p.do(http.MethodPost, "/rooms/"+roomID+"/letter", letterReq{Letter: string(c)}, nil); code != http.StatusOK {
			p.t.Fatalf("letter %c: status %d", c, code)
		}
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	p := newPlayer(t, ts)
	var body map[string]bool
	if code := p.do(http.MethodGet, "/health", nil, &body); code != http.StatusOK || !body["ok"] {
		t.Errorf("health = %d %v", code, body)
	}
	var stats map[string]int
	p.do(http.MethodGet, "/debug/words", nil, &stats)
	if stats["length"] != 5 || stats["answers"] == 0 || stats["allowed"] < stats["answers"] {
		t.Errorf("debug/words = %v", stats)
	}
}

func TestPlayRoundOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	p := newPlayer(t, ts)
	id := p.createRoom("crane")

	var hist map[string]string
	if code := p.do(http.MethodGet, "/rooms/"+id+"/history", nil, &hist); code != http.StatusConflict {
		t.Errorf("history before end: status %d", code)
	}

	p.typeWord(id, "CRA")
	var verr map[string]string
	if code := p.do(http.MethodPost, "/rooms/"+id+"/submit", nil, &verr); code != http.StatusUnprocessableEntity {
		t.Fatalf("short submit: status %d", code)
	}
	if diff := cmp.Diff(map[string]string{"error": game.MsgNotEnoughLetters}, verr); diff != "" {
		t.Errorf("validation (-want +got)\n%s", diff)
	}

	p.typeWord(id, "NE")
	var st protocol.GameState
	if code := p.do(http.MethodPost, "/rooms/"+id+"/submit", submitReq{}, &st); code != http.StatusOK {
		t.Fatalf("submit: status %d", code)
	}
	if st.Phase != game.PhaseWon || st.Target != "CRANE" || !strings.HasPrefix(st.Winner, guestPrefix) {
		t.Errorf("after win: phase %q target %q winner %q", st.Phase, st.Target, st.Winner)
	}
	for i, v := range st.Colors[0] {
		if v != game.VerdictCorrect {
			t.Errorf("colors[0][%d] = %q", i, v)
		}
	}

	var entries []game.Entry
	if code := p.do(http.MethodGet, "/rooms/"+id+"/history", nil, &entries); code != http.StatusOK {
		t.Fatalf("history: status %d", code)
	}
	if len(entries) == 0 || entries[len(entries)-1].Kind != game.EntrySubmit {
		t.Errorf("history = %+v", entries)
	}
	for _, e := range entries {
		if e.Actor != st.Winner {
			t.Errorf("entry %d actor %q, want the guest cookie identity %q", e.Seq, e.Actor, st.Winner)
		}
	}

	var next protocol.GameState
	p.do(http.MethodPost, "/rooms/"+id+"/new", nil, &next)
	if next.Round != 2 || next.GamesPlayed != 1 || next.Phase != game.PhaseInProgress || next.Target != "" {
		t.Errorf("new round: round %d played %d phase %q target %q", next.Round, next.GamesPlayed, next.Phase, next.Target)
	}
}

func TestRoomErrors(t *testing.T) {
	ts := newTestServer(t)
	p := newPlayer(t, ts)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown room", http.MethodGet, "/rooms/nope", nil, http.StatusNotFound},
		{"unknown room intent", http.MethodPost, "/rooms/nope/backspace", nil, http.StatusNotFound},
		{"answer length", http.MethodPost, "/rooms", createRoomReq{Answer: "pickle"}, http.StatusBadRequest},
		{"answer letters", http.MethodPost, "/rooms", createRoomReq{Answer: "cr4ne"}, http.StatusBadRequest},
		{"empty letter", http.MethodPost, "/rooms/x/letter", letterReq{}, http.StatusBadRequest},
		{"bad date", http.MethodGet, "/daily/leaderboard?date=yesterday", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/daily/leaderboard?limit=0", nil, http.StatusBadRequest},
		{"me without token", http.MethodGet, "/auth/me", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.do(tt.method, tt.path, tt.body, nil); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDailyRoomAndLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	p := newPlayer(t, ts)

	var d dailyRes
	if code := p.do(http.MethodGet, "/rooms/daily", nil, &d); code != http.StatusOK {
		t.Fatalf("daily: status %d", code)
	}
	if d.RoomID != "daily-2026-04-01" || d.Date != "2026-04-01" || !strings.HasSuffix(d.URL, "/rooms/"+d.RoomID) {
		t.Errorf("daily = %+v", d)
	}

	lists, _ := words.Load(words.Config{Length: 5})
	_, _, word := daily.Schedule{Salt: "test", Answers: lists.Answers()}.Word(testNow)

	// A private room with the same answer stays off the daily board.
	rival := newPlayer(t, ts)
	private := rival.createRoom(word)
	rival.typeWord(private, word)
	var won protocol.GameState
	rival.do(http.MethodPost, "/rooms/"+private+"/submit", nil, &won)
	if won.Phase != game.PhaseWon {
		t.Fatalf("private phase = %q, want won", won.Phase)
	}

	p.typeWord(d.RoomID, word)
	var st protocol.GameState
	p.do(http.MethodPost, "/rooms/"+d.RoomID+"/submit", nil, &st)
	if st.Phase != game.PhaseWon {
		t.Fatalf("phase = %q, want won", st.Phase)
	}

	var lb leaderboardRes
	if code := p.do(http.MethodGet, "/daily/leaderboard", nil, &lb); code != http.StatusOK {
		t.Fatalf("leaderboard: status %d", code)
	}
	want := leaderboardRes{
		Date: "2026-04-01",
		Rows: []store.LeaderboardRow{{Winner: st.Winner, RoomID: d.RoomID, Guesses: 1}},
	}
	if diff := cmp.Diff(want, lb); diff != "" {
		t.Errorf("leaderboard (-want +got)\n%s", diff)
	}

	var other leaderboardRes
	p.do(http.MethodGet, "/daily/leaderboard?date=2026-03-31", nil, &other)
	if other.Date != "2026-03-31" || len(other.Rows) != 0 {
		t.Errorf("other date = %+v", other)
	}
}

func TestRoomQR(t *testing.T) {
	ts := newTestServer(t)
	p := newPlayer(t, ts)
	id := p.createRoom("")

	res, err := p.c.Get(ts.URL + "/rooms/" + id + "/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("qr: status %d type %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Error("qr body is not a PNG")
	}
}

func TestAuthAndStats(t *testing.T) {
	ts := newTestServer(t)
	p := newPlayer(t, ts)

	creds := map[string]string{"username": "alice", "password": "correct horse"}
	if code := p.do(http.MethodPost, "/auth/signup", creds, nil); code != http.StatusCreated {
		t.Fatalf("signup: status %d", code)
	}
	if code := p.do(http.MethodPost, "/auth/signup", creds, nil); code != http.StatusConflict {
		t.Errorf("duplicate signup: status %d", code)
	}
	var me authUser
	if code := p.do(http.MethodGet, "/auth/me", nil, &me); code != http.StatusOK || me.Username != "alice" {
		t.Fatalf("me = %d %+v", code, me)
	}

	id := p.createRoom("crane")
	p.typeWord(id, "CRANE")
	var st protocol.GameState
	p.do(http.MethodPost, "/rooms/"+id+"/submit", nil, &st)
	if st.Winner != "alice" {
		t.Errorf("winner = %q, want the username", st.Winner)
	}

	var stats map[string]any
	p.do(http.MethodGet, "/stats/me", nil, &stats)
	if stats["gamesPlayed"] != float64(1) || stats["wins"] != float64(1) || stats["streak"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}

	p.do(http.MethodPost, "/auth/logout", nil, nil)
	if code := p.do(http.MethodGet, "/auth/me", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("me after logout: status %d", code)
	}

	q := newPlayer(t, ts)
	bad := map[string]string{"username": "alice", "password": "wrong password"}
	if code := q.do(http.MethodPost, "/auth/login", bad, nil); code != http.StatusUnauthorized {
		t.Errorf("bad login: status %d", code)
	}
	if code := q.do(http.MethodPost, "/auth/login", creds, nil); code != http.StatusOK {
		t.Errorf("login: status %d", code)
	}
}

// ------------------------------- WebSocket ---------------------------------

func dialRoom(t *testing.T, ts *httptest.Server, p *player, roomID string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{Jar: p.c.Jar, HandshakeTimeout: 2 * time.Second}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/rooms/" + roomID + "/ws"
	ws, _, err := d.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readMsg(t *testing.T, ws *websocket.Conn) any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.DecodeOutbound(b)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func readState(t *testing.T, ws *websocket.Conn) *protocol.GameState {
	t.Helper()
	st, ok := readMsg(t, ws).(*protocol.GameState)
	if !ok {
		t.Fatal("expected gameState")
	}
	return st
}

func TestWebSocketObservers(t *testing.T) {
	ts := newTestServer(t)
	alice, bob := newPlayer(t, ts), newPlayer(t, ts)
	id := alice.createRoom("crane")

	a := dialRoom(t, ts, alice, id)
	if st := readState(t, a); st.RoomID != id || st.Col != 0 {
		t.Fatalf("initial sync = %+v", st)
	}
	b := dialRoom(t, ts, bob, id)
	readState(t, b)

	// A letter from Alice's socket reaches both observers.
	if err := a.WriteJSON(protocol.AddLetter("", "c")); err != nil {
		t.Fatal(err)
	}
	for _, ws := range []*websocket.Conn{a, b} {
		if st := readState(t, ws); st.Col != 1 || st.Board[0][0].String() != "C" {
			t.Errorf("after letter: col %d cell %q", st.Col, st.Board[0][0])
		}
	}

	// An HTTP intent is broadcast to the sockets too.
	bob.do(http.MethodPost, "/rooms/"+id+"/letter", letterReq{Letter: "R"}, nil)
	for _, ws := range []*websocket.Conn{a, b} {
		if st := readState(t, ws); st.Col != 2 {
			t.Errorf("after http letter: col %d", st.Col)
		}
	}

	// A short submit is a validation for Alice alone.
	if err := a.WriteJSON(protocol.SubmitWord("")); err != nil {
		t.Fatal(err)
	}
	v, ok := readMsg(t, a).(*protocol.Validation)
	if !ok || v.Message != game.MsgNotEnoughLetters {
		t.Fatalf("alice got %+v", v)
	}
	if err := a.WriteJSON(protocol.Backspace("")); err != nil {
		t.Fatal(err)
	}
	if st := readState(t, b); st.Col != 1 {
		t.Errorf("bob's next message: col %d, want the backspace state", st.Col)
	}
}
