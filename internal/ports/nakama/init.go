// Package nakama runs the shared board as a Nakama authoritative match, for
// deployments that already route players through a Nakama server.
package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/robalobadob/wordle-live/internal/words"
)

// RPCCreateMatch creates a match and returns its ID.
const RPCCreateMatch = "wordle_create_match"

// InitModule wires the match handler and its RPC for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	cfg := words.Config{Length: words.DefaultLength}
	if v, err := strconv.Atoi(env["wordle_word_length"]); err == nil {
		cfg.Length = v
	}
	if err := words.Init(cfg); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchName, NewMatch); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RPCCreateMatch, rpcCreateMatch); err != nil {
		return err
	}

	logger.Info("Wordle Live Go module loaded.")
	return nil
}

type createMatchReq struct {
	Answer string `json:"answer,omitempty"`
	Daily  bool   `json:"daily,omitempty"`
}

type createMatchRes struct {
	MatchID string `json:"matchId"`
}

// rpcCreateMatch takes an optional {"answer": "...", "daily": true} payload.
func rpcCreateMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req createMatchReq
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", runtime.NewError("invalid payload", 3) // INVALID_ARGUMENT
		}
	}
	params := map[string]interface{}{"daily": req.Daily}
	if req.Answer != "" {
		lists, err := words.Default()
		if err != nil {
			return "", runtime.NewError("word lists unavailable", 13) // INTERNAL
		}
		answer, ok := checkAnswer(lists, req.Answer)
		if !ok {
			return "", runtime.NewError("invalid answer", 3) // INVALID_ARGUMENT
		}
		params["answer"] = answer
	}
	id, err := nk.MatchCreate(ctx, MatchName, params)
	if err != nil {
		logger.Error("rpcCreateMatch: %v", err)
		return "", runtime.NewError("could not create match", 13) // INTERNAL
	}
	b, _ := json.Marshal(createMatchRes{MatchID: id})
	return string(b), nil
}
