// internal/room/room.go
//
// The authority for one shared board.
//
// Responsibilities:
//   - Own the game.Round of a room on a single goroutine (Run) and apply
//     intents one at a time in arrival order.
//   - Publish the full public state to every observer after each accepted
//     mutation; send validation messages to the submitting actor only.
//   - Persist applied intents and round results, and rebuild the current
//     round from stored history on start. An intent the history refuses is
//     rolled back, so the live board never runs ahead of the stored log.
//
// Concurrency: all Round access happens inside Run. Apply, State, History
// and Sync hand a request to Run and wait for the reply.

package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle-live/internal/daily"
	"github.com/robalobadob/wordle-live/internal/game"
	"github.com/robalobadob/wordle-live/internal/protocol"
	"github.com/robalobadob/wordle-live/internal/store"
)

var (
	// ErrClosed is returned once the room's Run loop has exited.
	ErrClosed = errors.New("room: closed")
	// ErrRoundInProgress is returned by History while the round is still being played.
	ErrRoundInProgress = errors.New("room: round in progress")
	// ErrReadOnly is returned for newRound once a room no longer starts rounds.
	ErrReadOnly = errors.New("room: read-only")
)

// Publisher delivers outbound messages to the observers of a room.
// Delivery is fire-and-forget; errors are logged by the caller.
type Publisher interface {
	Broadcast(roomID string, msg any) error
	ToActor(roomID, actor string, msg any) error
}

// WordSource supplies the target of each new round.
type WordSource func() string

// Config describes one room.
type Config struct {
	ID         string
	Rows       int
	Visibility game.Visibility
	// Allowed enables the strict word list when set.
	Allowed func(string) bool
	// Target fixes the first round's word (daily rooms, tests); otherwise Words is used.
	Target string
	Words  WordSource
	// ClosesAt, when set, refuses new rounds from that instant on.
	ClosesAt  time.Time
	Publisher Publisher
	History   store.History
	// Users, when set, receives play counters for registered actors.
	Users store.Users
	Now   func() time.Time
}

// Outcome is the result of applying one intent.
type Outcome struct {
	State      protocol.GameState
	Applied    bool
	Validation string
}

type request struct {
	intent protocol.Intent
	kind   requestKind
	reply  chan reply
}

type requestKind int

const (
	reqApply requestKind = iota
	reqState
	reqHistory
	reqSync
)

type reply struct {
	outcome Outcome
	history []game.Entry
	err     error
}

// Room is the single writer of a round.
type Room struct {
	cfg    Config
	opts   game.Options
	reqs   chan request
	done   chan struct{}
	logger zerolog.Logger

	mu         sync.RWMutex
	lastActive time.Time

	// owned by Run
	round       *game.Round
	roundNo     int
	gamesPlayed int
	startedAt   time.Time
}

// New creates a room. When cfg.History holds rounds for cfg.ID, the latest
// one is rebuilt by replaying its intents; otherwise round 1 is started.
func New(ctx context.Context, cfg Config) (*Room, error) {
	if cfg.ID == "" {
		return nil, errors.New("room: empty id")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Visibility == "" {
		cfg.Visibility = game.RevealOnFinish
	}
	r := &Room{
		cfg:        cfg,
		opts:       game.Options{Rows: cfg.Rows, Allowed: cfg.Allowed, Now: cfg.Now},
		reqs:       make(chan request),
		done:       make(chan struct{}),
		logger:     log.With().Str("room", cfg.ID).Logger(),
		lastActive: cfg.Now(),
	}

	if cfg.History != nil {
		info, err := cfg.History.LatestRound(ctx, cfg.ID)
		switch {
		case err == nil:
			if err := r.restore(ctx, info); err != nil {
				return nil, err
			}
			return r, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("room %s: latest round: %w", cfg.ID, err)
		}
	}

	target := cfg.Target
	if target == "" {
		if cfg.Words == nil {
			return nil, fmt.Errorf("room %s: no target and no word source", cfg.ID)
		}
		target = cfg.Words()
	}
	if err := r.startRound(ctx, 1, target); err != nil {
		return nil, err
	}
	return r, nil
}

// restore replays the stored intents of a round.
func (r *Room) restore(ctx context.Context, info store.RoundInfo) error {
	entries, err := r.cfg.History.LoadIntents(ctx, r.cfg.ID, info.Round)
	if err != nil {
		return fmt.Errorf("room %s: load intents: %w", r.cfg.ID, err)
	}
	round, err := game.Replay(info.Target, r.opts, entries)
	if err != nil {
		return fmt.Errorf("room %s: replay round %d: %w", r.cfg.ID, info.Round, err)
	}
	r.round = round
	r.roundNo = info.Round
	r.gamesPlayed = info.Round - 1
	r.startedAt = info.StartedAt
	r.logger.Info().Int("round", info.Round).Int("intents", len(entries)).Msg("round restored")
	return nil
}

func (r *Room) startRound(ctx context.Context, no int, target string) error {
	round, err := game.NewRound(target, r.opts)
	if err != nil {
		return fmt.Errorf("room %s: %w", r.cfg.ID, err)
	}
	now := r.cfg.Now()
	if r.cfg.History != nil {
		info := store.RoundInfo{RoomID: r.cfg.ID, Round: no, Target: round.Target(), StartedAt: now}
		if err := r.cfg.History.StartRound(ctx, info); err != nil {
			return fmt.Errorf("room %s: %w", r.cfg.ID, err)
		}
	}
	r.round = round
	r.roundNo = no
	r.gamesPlayed = no - 1
	r.startedAt = now
	return nil
}

// ID returns the room ID.
func (r *Room) ID() string { return r.cfg.ID }

// Done is closed when Run exits.
func (r *Room) Done() <-chan struct{} { return r.done }

// LastActive returns the time of the last request handled.
func (r *Room) LastActive() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActive
}

func (r *Room) touch() {
	r.mu.Lock()
	r.lastActive = r.cfg.Now()
	r.mu.Unlock()
}

// Run serves requests until ctx is cancelled.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	r.logger.Debug().Int("round", r.roundNo).Msg("room running")
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("room stopped")
			return
		case req := <-r.reqs:
			r.touch()
			req.reply <- r.handle(ctx, req)
		}
	}
}

func (r *Room) handle(ctx context.Context, req request) reply {
	switch req.kind {
	case reqState:
		return reply{outcome: Outcome{State: r.state()}}
	case reqHistory:
		if !r.round.Phase().Terminal() {
			return reply{err: ErrRoundInProgress}
		}
		return reply{history: r.round.History()}
	case reqSync:
		st := r.state()
		if r.cfg.Publisher != nil {
			if err := r.cfg.Publisher.ToActor(r.cfg.ID, req.intent.Actor, st); err != nil {
				r.logger.Warn().Err(err).Str("actor", req.intent.Actor).Msg("sync state")
			}
		}
		return reply{outcome: Outcome{State: st}}
	default:
		out, err := r.apply(ctx, req.intent)
		return reply{outcome: out, err: err}
	}
}

// apply runs one intent against the round.
func (r *Room) apply(ctx context.Context, in protocol.Intent) (Outcome, error) {
	if in.Type == protocol.TypeNewRound {
		return r.newRound(ctx, in.Actor)
	}

	err := in.Apply(r.round)
	var verr *game.ValidationError
	switch {
	case errors.Is(err, game.ErrIgnored):
		r.logger.Debug().Str("actor", in.Actor).Str("type", string(in.Type)).Msg("intent ignored")
		return Outcome{State: r.state()}, nil
	case errors.As(err, &verr):
		r.logger.Debug().Str("actor", in.Actor).Str("reason", verr.Message).Msg("submit rejected")
		if r.cfg.Publisher != nil {
			if err := r.cfg.Publisher.ToActor(r.cfg.ID, in.Actor, protocol.NewValidation(verr.Message)); err != nil {
				r.logger.Warn().Err(err).Str("actor", in.Actor).Msg("send validation")
			}
		}
		return Outcome{State: r.state(), Validation: verr.Message}, nil
	case err != nil:
		return Outcome{State: r.state()}, err
	}

	if err := r.persistLast(ctx); err != nil {
		r.rollback()
		return Outcome{State: r.state()}, err
	}
	if in.Type == protocol.TypeSubmitWord && len(in.Colors) > 0 {
		r.crossCheck(in)
	}
	if r.round.Phase().Terminal() {
		r.finish(ctx)
	}
	st := r.state()
	r.broadcast(st)
	return Outcome{State: st, Applied: true}, nil
}

// crossCheck compares client-computed colors with the authoritative row.
func (r *Room) crossCheck(in protocol.Intent) {
	row, _ := r.round.Cursor()
	snap := r.round.Snapshot(false)
	got := snap.Colors[row-1]
	for i, v := range got {
		if i >= len(in.Colors) || in.Colors[i] != v {
			r.logger.Debug().Str("actor", in.Actor).Int("row", row-1).Msg("client colors disagree with authority")
			return
		}
	}
}

func (r *Room) newRound(ctx context.Context, actor string) (Outcome, error) {
	if !r.round.Phase().Terminal() {
		r.logger.Debug().Str("actor", actor).Msg("new round ignored; round in progress")
		return Outcome{State: r.state()}, nil
	}
	if r.cfg.Words == nil || (!r.cfg.ClosesAt.IsZero() && !r.cfg.Now().Before(r.cfg.ClosesAt)) {
		return Outcome{State: r.state()}, fmt.Errorf("room %s: %w", r.cfg.ID, ErrReadOnly)
	}
	if err := r.startRound(ctx, r.roundNo+1, r.cfg.Words()); err != nil {
		return Outcome{State: r.state()}, err
	}
	r.logger.Info().Str("actor", actor).Int("round", r.roundNo).Msg("new round")
	st := r.state()
	r.broadcast(st)
	return Outcome{State: st, Applied: true}, nil
}

func (r *Room) persistLast(ctx context.Context) error {
	if r.cfg.History == nil {
		return nil
	}
	h := r.round.History()
	if len(h) == 0 {
		return nil
	}
	if err := r.cfg.History.AppendIntent(ctx, r.cfg.ID, r.roundNo, h[len(h)-1]); err != nil {
		r.logger.Error().Err(err).Int("seq", h[len(h)-1].Seq).Msg("append intent")
		return fmt.Errorf("room %s: append intent: %w", r.cfg.ID, err)
	}
	return nil
}

// rollback drops the last applied intent by replaying the ones before it.
func (r *Room) rollback() {
	h := r.round.History()
	prev, err := game.Replay(r.round.Target(), r.opts, h[:len(h)-1])
	if err != nil {
		r.logger.Error().Err(err).Msg("rollback")
		return
	}
	r.round = prev
}

// finish stores the result of a round that just ended. Only the first round
// of a daily room carries a date, which puts it on that date's leaderboard.
func (r *Room) finish(ctx context.Context) {
	now := r.cfg.Now()
	var date string
	if d, ok := daily.DateFromRoomID(r.cfg.ID); ok && r.roundNo == 1 {
		date = daily.DateKey(d)
	}
	res := store.Result{
		RoomID:    r.cfg.ID,
		Round:     r.roundNo,
		Date:      date,
		Target:    r.round.Target(),
		Winner:    r.round.Winner(),
		Outcome:   r.round.Phase(),
		Guesses:   r.round.Guesses(),
		ElapsedMs: now.Sub(r.startedAt).Milliseconds(),
	}
	r.logger.Info().
		Int("round", r.roundNo).
		Str("outcome", string(res.Outcome)).
		Str("winner", res.Winner).
		Int("guesses", res.Guesses).
		Msg("round finished")

	if r.cfg.History != nil {
		if err := r.cfg.History.SaveResult(ctx, res); err != nil {
			r.logger.Error().Err(err).Msg("save result")
		}
	}
	if r.cfg.Users != nil {
		for _, actor := range participants(r.round.History()) {
			err := r.cfg.Users.RecordOutcome(ctx, actor, actor == res.Winner)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				r.logger.Warn().Err(err).Str("actor", actor).Msg("record outcome")
			}
		}
	}
}

// participants returns the distinct actors of a history in order of first appearance.
func participants(h []game.Entry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range h {
		if e.Actor == "" || seen[e.Actor] {
			continue
		}
		seen[e.Actor] = true
		out = append(out, e.Actor)
	}
	return out
}

func (r *Room) state() protocol.GameState {
	return protocol.NewGameState(r.cfg.ID, r.roundNo, r.gamesPlayed, r.round.Public(r.cfg.Visibility))
}

func (r *Room) broadcast(st protocol.GameState) {
	if r.cfg.Publisher == nil {
		return
	}
	if err := r.cfg.Publisher.Broadcast(r.cfg.ID, st); err != nil {
		r.logger.Warn().Err(err).Msg("broadcast state")
	}
}

// do hands a request to Run and waits for its reply.
func (r *Room) do(ctx context.Context, req request) (reply, error) {
	req.reply = make(chan reply, 1)
	select {
	case r.reqs <- req:
	case <-r.done:
		return reply{}, ErrClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep, rep.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// Apply submits an intent and waits for the outcome.
func (r *Room) Apply(ctx context.Context, in protocol.Intent) (Outcome, error) {
	rep, err := r.do(ctx, request{kind: reqApply, intent: in})
	return rep.outcome, err
}

// State returns the current public state.
func (r *Room) State(ctx context.Context) (protocol.GameState, error) {
	rep, err := r.do(ctx, request{kind: reqState})
	return rep.outcome.State, err
}

// History returns the applied intents of the current round once it has ended.
func (r *Room) History(ctx context.Context) ([]game.Entry, error) {
	rep, err := r.do(ctx, request{kind: reqHistory})
	return rep.history, err
}

// Sync sends the current public state to one actor.
func (r *Room) Sync(ctx context.Context, actor string) error {
	_, err := r.do(ctx, request{kind: reqSync, intent: protocol.Intent{Actor: actor}})
	return err
}
