package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/robalobadob/wordle-live/internal/game"
	"github.com/robalobadob/wordle-live/internal/protocol"
	"github.com/robalobadob/wordle-live/internal/store"
)

type sent struct {
	room  string
	actor string // empty for broadcasts
	msg   any
}

// fakePublisher records every message in order.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []sent
}

func (p *fakePublisher) Broadcast(roomID string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, sent{room: roomID, msg: msg})
	return nil
}

func (p *fakePublisher) ToActor(roomID, actor string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, sent{room: roomID, actor: actor, msg: msg})
	return nil
}

func (p *fakePublisher) all() []sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sent(nil), p.msgs...)
}

func (p *fakePublisher) reset() {
	p.mu.Lock()
	p.msgs = nil
	p.mu.Unlock()
}

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func startRoom(t *testing.T, cfg Config) *Room {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = fixedClock
	}
	r, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	return r
}

func apply(t *testing.T, r *Room, in protocol.Intent) Outcome {
	t.Helper()
	out, err := r.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply(%+v): %v", in, err)
	}
	return out
}

func typeWord(t *testing.T, r *Room, actor, word string) {
	t.Helper()
	for _, c := range word {
		apply(t, r, protocol.AddLetter(actor, string(c)))
	}
}

func TestApplyPublishesToEveryone(t *testing.T) {
	pub := &fakePublisher{}
	r := startRoom(t, Config{ID: "r1", Target: "CRANE", Publisher: pub})

	out := apply(t, r, protocol.AddLetter("alice", "s"))
	if !out.Applied {
		t.Fatal("letter not applied")
	}
	if out.State.Col != 1 || out.State.Round != 1 || out.State.RoomID != "r1" {
		t.Errorf("state after letter = row %d col %d round %d room %q", out.State.Row, out.State.Col, out.State.Round, out.State.RoomID)
	}

	msgs := pub.all()
	if len(msgs) != 1 || msgs[0].actor != "" {
		t.Fatalf("published %+v, want one broadcast", msgs)
	}
	gs, ok := msgs[0].msg.(protocol.GameState)
	if !ok {
		t.Fatalf("broadcast %T, want protocol.GameState", msgs[0].msg)
	}
	if diff := cmp.Diff(out.State, gs); diff != "" {
		t.Errorf("broadcast differs from outcome (-outcome +broadcast)\n%s", diff)
	}
	if gs.Target != "" {
		t.Errorf("in-progress broadcast revealed %q", gs.Target)
	}
}

func TestValidationGoesToActorOnly(t *testing.T) {
	pub := &fakePublisher{}
	r := startRoom(t, Config{ID: "r1", Target: "CRANE", Publisher: pub})
	typeWord(t, r, "alice", "CRA")
	pub.reset()

	out := apply(t, r, protocol.SubmitWord("bob"))
	if out.Applied || out.Validation != game.MsgNotEnoughLetters {
		t.Fatalf("outcome = %+v, want validation", out)
	}
	msgs := pub.all()
	want := []sent{{room: "r1", actor: "bob", msg: protocol.NewValidation(game.MsgNotEnoughLetters)}}
	if diff := cmp.Diff(want, msgs, cmp.AllowUnexported(sent{})); diff != "" {
		t.Errorf("published (-want +got)\n%s", diff)
	}
	if out.State.Row != 0 || out.State.Col != 3 {
		t.Errorf("cursor moved to (%d,%d) on rejected submit", out.State.Row, out.State.Col)
	}
}

func TestIgnoredIntentPublishesNothing(t *testing.T) {
	pub := &fakePublisher{}
	r := startRoom(t, Config{ID: "r1", Target: "CRANE", Publisher: pub})

	out := apply(t, r, protocol.Backspace("alice"))
	if out.Applied {
		t.Error("backspace on empty row applied")
	}
	if out := apply(t, r, protocol.AddLetter("alice", "7")); out.Applied {
		t.Error("non-letter applied")
	}
	if msgs := pub.all(); len(msgs) != 0 {
		t.Errorf("published %d messages for ignored intents", len(msgs))
	}
}

func TestRoundLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	words := []string{"SLATE", "TRAIN"}
	next := func() string {
		w := words[0]
		words = words[1:]
		return w
	}
	r := startRoom(t, Config{ID: "r1", Target: "CRANE", Rows: 2, Words: next, Publisher: pub})

	if out := apply(t, r, protocol.NewRound("alice")); out.Applied {
		t.Fatal("newRound accepted while round in progress")
	}

	typeWord(t, r, "alice", "CRANE")
	out := apply(t, r, protocol.SubmitWord("bob"))
	if out.State.Phase != game.PhaseWon || out.State.Winner != "bob" {
		t.Fatalf("phase %q winner %q, want won by bob", out.State.Phase, out.State.Winner)
	}
	if out.State.Target != "CRANE" {
		t.Errorf("terminal state target = %q, want revealed", out.State.Target)
	}

	// Locked after the win.
	if out := apply(t, r, protocol.AddLetter("alice", "A")); out.Applied {
		t.Error("letter applied after win")
	}

	out = apply(t, r, protocol.NewRound("carol"))
	if !out.Applied {
		t.Fatal("newRound rejected after win")
	}
	if out.State.Round != 2 || out.State.GamesPlayed != 1 {
		t.Errorf("round %d gamesPlayed %d, want 2 and 1", out.State.Round, out.State.GamesPlayed)
	}
	if out.State.Phase != game.PhaseInProgress || out.State.Winner != "" || out.State.Target != "" {
		t.Errorf("new round state = phase %q winner %q target %q", out.State.Phase, out.State.Winner, out.State.Target)
	}
	for _, key := range "ABCDEFGHIJKLMNOPQRSTUVWXYZ" {
		if v := out.State.Keyboard.Get(byte(key)); v != game.VerdictNone {
			t.Fatalf("keyboard %c = %q after new round", key, v)
		}
	}
}

func TestRevealAlways(t *testing.T) {
	r := startRoom(t, Config{ID: "r1", Target: "CRANE", Visibility: game.RevealAlways})
	st, err := r.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Target != "CRANE" {
		t.Errorf("target = %q under reveal-always", st.Target)
	}
}

func TestHistoryOnlyAfterRoundEnds(t *testing.T) {
	r := startRoom(t, Config{ID: "r1", Target: "CRANE", Rows: 1})
	ctx := context.Background()
	if _, err := r.History(ctx); !errors.Is(err, ErrRoundInProgress) {
		t.Fatalf("History in progress: err = %v", err)
	}
	typeWord(t, r, "alice", "SLATE")
	apply(t, r, protocol.SubmitWord("alice"))

	h, err := r.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 6 || h[5].Kind != game.EntrySubmit {
		t.Errorf("history = %+v", h)
	}
}

func TestPersistAndRestore(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	first := startRoom(t, Config{ID: "r1", Target: "CRANE", History: st})
	typeWord(t, first, "alice", "SLATE")
	apply(t, first, protocol.SubmitWord("alice"))
	typeWord(t, first, "bob", "CR")
	apply(t, first, protocol.Backspace("bob"))
	want, err := first.State(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// A second authority for the same ID rebuilds from the stored intents.
	second := startRoom(t, Config{ID: "r1", Target: "IGNORED", History: st})
	got, err := second.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("restored state (-want +got)\n%s", diff)
	}
}

func TestFinishedRoundIsRecorded(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	if _, err := st.CreateUser(ctx, "alice", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateUser(ctx, "bob", "x"); err != nil {
		t.Fatal(err)
	}

	r := startRoom(t, Config{ID: "daily-2026-04-01", Target: "CRANE", History: st, Users: st})
	typeWord(t, r, "alice", "CRA")
	typeWord(t, r, "guest-abc123", "NE")
	apply(t, r, protocol.SubmitWord("bob"))

	board, err := st.Leaderboard(ctx, "2026-04-01", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 1 || board[0].Winner != "bob" || board[0].Guesses != 1 {
		t.Errorf("leaderboard = %+v", board)
	}

	alice, _ := st.UserByUsername(ctx, "alice")
	bob, _ := st.UserByUsername(ctx, "bob")
	if alice.GamesPlayed != 1 || alice.Wins != 0 || bob.Wins != 1 || bob.Streak != 1 {
		t.Errorf("counters alice=%+v bob=%+v", alice, bob)
	}
}

func TestLeaderboardOnlyCountsDailyFirstRound(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		round int // rounds won before the checked one
		clock time.Time
		date  string
		want  int
	}{
		{"private room", "myroom", 0, testNow, "2026-04-01", 0},
		{"daily first round", "daily-2026-04-01", 0, testNow, "2026-04-01", 1},
		{"daily later round", "daily-2026-04-01", 1, testNow, "2026-04-01", 1},
		{"daily finished after midnight", "daily-2026-03-31", 0, testNow, "2026-03-31", 1},
		{"not filed under the finishing day", "daily-2026-03-31", 0, testNow, "2026-04-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			ctx := context.Background()
			clock := tt.clock
			r := startRoom(t, Config{
				ID:      tt.id,
				Target:  "CRANE",
				Words:   func() string { return "CRANE" },
				History: st,
				Now:     func() time.Time { return clock },
			})
			for i := 0; i <= tt.round; i++ {
				if i > 0 {
					apply(t, r, protocol.NewRound("host"))
				}
				typeWord(t, r, "cheater", "CRANE")
				apply(t, r, protocol.SubmitWord("cheater"))
			}

			board, err := st.Leaderboard(ctx, tt.date, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(board) != tt.want {
				t.Errorf("leaderboard %s = %+v, want %d rows", tt.date, board, tt.want)
			}
		})
	}
}

// flakyHistory fails the nth AppendIntent call.
type flakyHistory struct {
	store.History
	failAt int
	calls  int
}

func (h *flakyHistory) AppendIntent(ctx context.Context, roomID string, round int, e game.Entry) error {
	h.calls++
	if h.calls == h.failAt {
		return errors.New("disk full")
	}
	return h.History.AppendIntent(ctx, roomID, round, e)
}

func TestFailedPersistRollsBack(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	pub := &fakePublisher{}
	live := startRoom(t, Config{ID: "r1", Target: "CRANE", History: &flakyHistory{History: st, failAt: 2}, Publisher: pub})

	apply(t, live, protocol.AddLetter("alice", "C"))
	pub.reset()
	if _, err := live.Apply(ctx, protocol.AddLetter("alice", "R")); err == nil {
		t.Fatal("Apply succeeded although the history refused the intent")
	}
	if msgs := pub.all(); len(msgs) != 0 {
		t.Errorf("published %d messages for a refused intent", len(msgs))
	}
	apply(t, live, protocol.AddLetter("alice", "A"))

	want, err := live.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want.Col != 2 || want.Board[0][1].String() != "A" {
		t.Fatalf("live row = %v col %d, want CA", want.Board[0], want.Col)
	}

	rebuilt := startRoom(t, Config{ID: "r1", Target: "IGNORED", History: st})
	got, err := rebuilt.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rebuilt state (-live +rebuilt)\n%s", diff)
	}
}

func TestConcurrentIntentsAreSerialised(t *testing.T) {
	r := startRoom(t, Config{ID: "r1", Target: "PICKLE"})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Apply(context.Background(), protocol.AddLetter("p", "A"))
		}()
	}
	wg.Wait()

	st, err := r.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Col != 6 || st.Cols != 6 {
		t.Errorf("col = %d of %d, want a full row", st.Col, st.Cols)
	}
}

func TestSyncSendsToOneActor(t *testing.T) {
	pub := &fakePublisher{}
	r := startRoom(t, Config{ID: "r1", Target: "CRANE", Publisher: pub})
	if err := r.Sync(context.Background(), "late"); err != nil {
		t.Fatal(err)
	}
	msgs := pub.all()
	if len(msgs) != 1 || msgs[0].actor != "late" {
		t.Fatalf("published %+v", msgs)
	}
	if _, ok := msgs[0].msg.(protocol.GameState); !ok {
		t.Errorf("sync sent %T", msgs[0].msg)
	}
}

func TestApplyAfterClose(t *testing.T) {
	r, err := New(context.Background(), Config{ID: "r1", Target: "CRANE", Now: fixedClock})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	cancel()
	<-r.Done()

	if _, err := r.Apply(context.Background(), protocol.AddLetter("a", "A")); !errors.Is(err, ErrClosed) {
		t.Errorf("Apply after close: err = %v, want ErrClosed", err)
	}
}

func TestNewRequiresWord(t *testing.T) {
	if _, err := New(context.Background(), Config{ID: "r1"}); err == nil {
		t.Error("New without target or word source succeeded")
	}
	if _, err := New(context.Background(), Config{Target: "CRANE"}); err == nil {
		t.Error("New without id succeeded")
	}
}
