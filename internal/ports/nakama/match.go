package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/robalobadob/wordle-live/internal/daily"
	"github.com/robalobadob/wordle-live/internal/game"
	"github.com/robalobadob/wordle-live/internal/protocol"
	"github.com/robalobadob/wordle-live/internal/words"
)

// MatchName is the module name passed to nk.MatchCreate.
const MatchName = "wordle_live"

// Op codes. Inbound codes carry an optional JSON body ({"letter":"A"} for
// addLetter, {"colors":[...]} for submitWord); outbound bodies are the same
// JSON messages the WebSocket transport sends.
const (
	OpAddLetter  int64 = 1
	OpBackspace  int64 = 2
	OpSubmitWord int64 = 3
	OpNewRound   int64 = 4

	OpGameState  int64 = 101
	OpValidation int64 = 102
)

const tickRate = 5

// MatchState is the authoritative state of one shared board.
type MatchState struct {
	MatchID     string
	Round       *game.Round
	RoundNo     int
	GamesPlayed int
	Visibility  game.Visibility
	Options     game.Options
	Presences   map[string]runtime.Presence // keyed by session ID
	Words       func() string
	LastPhase   game.Phase
	EmptyTicks  int
}

// MatchLabel is published for match listing.
type MatchLabel struct {
	Game    string     `json:"game"`
	Phase   game.Phase `json:"phase"`
	Round   int        `json:"round"`
	Players int        `json:"players"`
}

type matchHandler struct{}

// NewMatch is the factory function registered with Nakama.
func NewMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
	return &matchHandler{}, nil
}

// MatchInit reads params "answer" (fixed first word) or "daily" (today's
// scheduled word), and the runtime env keys wordle_rows, wordle_visibility
// and wordle_daily_salt.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	lists, err := words.Default()
	if err != nil {
		logger.Error("MatchInit: word lists: %v", err)
		return nil, 0, ""
	}

	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	state := &MatchState{
		Visibility: game.RevealOnFinish,
		Presences:  make(map[string]runtime.Presence),
		Words:      lists.RandomAnswer,
	}
	state.MatchID, _ = ctx.Value(runtime.RUNTIME_CTX_MATCH_ID).(string)
	if v, ok := env["wordle_rows"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			state.Options.Rows = n
		}
	}
	if v := game.Visibility(env["wordle_visibility"]); v == game.RevealAlways {
		state.Visibility = v
	}

	target, _ := params["answer"].(string)
	if target != "" {
		var ok bool
		if target, ok = checkAnswer(lists, target); !ok {
			logger.Error("MatchInit: answer %q does not fit a %d-letter board", params["answer"], lists.Length())
			return nil, 0, ""
		}
	}
	if d, _ := params["daily"].(bool); d && target == "" {
		salt := env["wordle_daily_salt"]
		if salt == "" {
			salt = "local_dev_salt"
		}
		_, _, target = daily.Schedule{Salt: salt, Answers: lists.Answers()}.Word(time.Now())
	}
	if target == "" {
		target = state.Words()
	}
	if err := state.startRound(target); err != nil {
		logger.Error("MatchInit: %v", err)
		return nil, 0, ""
	}

	rows, cols := state.Round.Dims()
	logger.Debug("MatchInit: round 1 started on a %dx%d board.", rows, cols)
	return state, tickRate, state.label()
}

// checkAnswer uppercases a fixed answer and reports whether it has the
// configured length and only letters A-Z.
func checkAnswer(lists *words.Lists, answer string) (string, bool) {
	a := strings.ToUpper(strings.TrimSpace(answer))
	if len(a) != lists.Length() {
		return a, false
	}
	for i := 0; i < len(a); i++ {
		if a[i] < 'A' || a[i] > 'Z' {
			return a, false
		}
	}
	return a, true
}

func (ms *MatchState) startRound(target string) error {
	r, err := game.NewRound(target, ms.Options)
	if err != nil {
		return err
	}
	ms.Round = r
	ms.RoundNo++
	ms.GamesPlayed = ms.RoundNo - 1
	ms.LastPhase = r.Phase()
	return nil
}

func (ms *MatchState) gameState() protocol.GameState {
	return protocol.NewGameState(ms.MatchID, ms.RoundNo, ms.GamesPlayed, ms.Round.Public(ms.Visibility))
}

func (ms *MatchState) label() string {
	b, _ := json.Marshal(MatchLabel{
		Game:    MatchName,
		Phase:   ms.Round.Phase(),
		Round:   ms.RoundNo,
		Players: len(ms.Presences),
	})
	return string(b)
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	if _, ok := state.(*MatchState); !ok {
		return state, false, "state not found"
	}
	return state, true, ""
}

// MatchJoin sends each joining observer the current state.
func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		return state
	}
	for _, p := range presences {
		ms.Presences[p.GetSessionId()] = p
	}
	ms.EmptyTicks = 0
	if b, err := json.Marshal(ms.gameState()); err == nil {
		if err := dispatcher.BroadcastMessage(OpGameState, b, presences, nil, true); err != nil {
			logger.Warn("MatchJoin: sync failed: %v", err)
		}
	}
	mh.updateLabel(ms, dispatcher, logger)
	return ms
}

func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		return state
	}
	for _, p := range presences {
		delete(ms.Presences, p.GetSessionId())
	}
	mh.updateLabel(ms, dispatcher, logger)
	return ms
}

// emptyTicksLimit ends a match nobody has watched for a minute.
const emptyTicksLimit = 60 * tickRate

// MatchLoop applies the tick's messages in arrival order.
func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		return state
	}

	if len(ms.Presences) == 0 {
		ms.EmptyTicks++
		if ms.EmptyTicks >= emptyTicksLimit {
			logger.Info("MatchLoop: no observers, ending match.")
			return nil
		}
	}

	for _, msg := range messages {
		in, err := decodeMessage(msg)
		if err != nil {
			logger.Warn("MatchLoop: %v", err)
			continue
		}
		mh.handleIntent(ms, dispatcher, logger, msg, in)
	}

	if phase := ms.Round.Phase(); phase != ms.LastPhase {
		ms.LastPhase = phase
		mh.updateLabel(ms, dispatcher, logger)
	}
	return ms
}

// decodeMessage turns an op code and optional JSON body into an intent
// attributed to the sender's username.
func decodeMessage(msg runtime.MatchData) (protocol.Intent, error) {
	in := protocol.Intent{Actor: msg.GetUsername()}
	if in.Actor == "" {
		in.Actor = msg.GetUserId()
	}
	switch msg.GetOpCode() {
	case OpAddLetter:
		in.Type = protocol.TypeAddLetter
	case OpBackspace:
		in.Type = protocol.TypeBackspace
	case OpSubmitWord:
		in.Type = protocol.TypeSubmitWord
	case OpNewRound:
		in.Type = protocol.TypeNewRound
	default:
		return in, errors.New("unknown opcode " + strconv.FormatInt(msg.GetOpCode(), 10))
	}
	if data := msg.GetData(); len(data) > 0 {
		var body struct {
			Letter string         `json:"letter"`
			Colors []game.Verdict `json:"colors"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return in, errors.New("bad payload: " + err.Error())
		}
		in.Letter, in.Colors = body.Letter, body.Colors
	}
	return in, in.Validate()
}

func (mh *matchHandler) handleIntent(ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, sender runtime.Presence, in protocol.Intent) {
	if in.Type == protocol.TypeNewRound {
		if !ms.Round.Phase().Terminal() {
			return
		}
		if err := ms.startRound(ms.Words()); err != nil {
			logger.Error("handleIntent: new round: %v", err)
			return
		}
		mh.broadcastState(ms, dispatcher, logger)
		return
	}

	err := in.Apply(ms.Round)
	var verr *game.ValidationError
	switch {
	case errors.Is(err, game.ErrIgnored):
		return
	case errors.As(err, &verr):
		mh.sendValidation(ms, dispatcher, logger, sender, verr.Message)
		return
	case err != nil:
		logger.Warn("handleIntent: %s from %s: %v", in.Type, in.Actor, err)
		return
	}
	mh.broadcastState(ms, dispatcher, logger)
}

func (mh *matchHandler) broadcastState(ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	b, err := json.Marshal(ms.gameState())
	if err != nil {
		logger.Error("Failed to marshal game state: %v", err)
		return
	}
	if err := dispatcher.BroadcastMessage(OpGameState, b, nil, nil, true); err != nil {
		logger.Error("Failed to broadcast game state: %v", err)
	}
}

// sendValidation reaches the sending session only.
func (mh *matchHandler) sendValidation(ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, sender runtime.Presence, message string) {
	b, err := json.Marshal(protocol.NewValidation(message))
	if err != nil {
		logger.Error("Failed to marshal validation: %v", err)
		return
	}
	presence, ok := ms.Presences[sender.GetSessionId()]
	if !ok {
		logger.Warn("Cannot send validation to %s: presence not found", sender.GetUserId())
		return
	}
	if err := dispatcher.BroadcastMessage(OpValidation, b, []runtime.Presence{presence}, nil, true); err != nil {
		logger.Error("Failed to send validation: %v", err)
	}
}

func (mh *matchHandler) updateLabel(ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if err := dispatcher.MatchLabelUpdate(ms.label()); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, reason int) interface{} {
	logger.Debug("MatchTerminate: Match terminated for reason %d", reason)
	return state
}

// MatchSignal answers any signal with the current public state.
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	ms, ok := state.(*MatchState)
	if !ok {
		return state, ""
	}
	b, err := json.Marshal(ms.gameState())
	if err != nil {
		return state, ""
	}
	return ms, string(b)
}
