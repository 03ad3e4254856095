// Package protocol defines the JSON messages exchanged between clients and a
// room authority. Every message carries a "type" discriminator.
//
// Inbound (client → authority): addLetter, backspace, submitWord, newRound.
// Outbound (authority → clients): gameState to everyone, validation to the
// submitting actor only.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/robalobadob/wordle-live/internal/game"
)

// Type is the message discriminator.
type Type string

const (
	TypeAddLetter  Type = "addLetter"
	TypeBackspace  Type = "backspace"
	TypeSubmitWord Type = "submitWord"
	TypeNewRound   Type = "newRound"

	TypeGameState  Type = "gameState"
	TypeValidation Type = "validation"
)

// Intent is an inbound request to mutate the shared board.
// Actor is overwritten by the authority with the connection's identity.
type Intent struct {
	Type   Type   `json:"type"`
	Letter string `json:"letter,omitempty"`
	Actor  string `json:"actor,omitempty"`
	// Colors are the verdicts a client computed locally for submitWord.
	// They are never trusted.
	Colors []game.Verdict `json:"colors,omitempty"`
}

// AddLetter, Backspace, SubmitWord and NewRound build intents for actor.
func AddLetter(actor, letter string) Intent {
	return Intent{Type: TypeAddLetter, Letter: letter, Actor: actor}
}
func Backspace(actor string) Intent  { return Intent{Type: TypeBackspace, Actor: actor} }
func SubmitWord(actor string) Intent { return Intent{Type: TypeSubmitWord, Actor: actor} }
func NewRound(actor string) Intent   { return Intent{Type: TypeNewRound, Actor: actor} }

// Validate reports whether the intent has a known type and, for addLetter, a letter.
func (i Intent) Validate() error {
	switch i.Type {
	case TypeAddLetter:
		if i.Letter == "" {
			return fmt.Errorf("protocol: addLetter without letter")
		}
	case TypeBackspace, TypeSubmitWord, TypeNewRound:
	default:
		return fmt.Errorf("protocol: unknown intent type %q", i.Type)
	}
	return nil
}

// DecodeIntent parses and validates one inbound message.
func DecodeIntent(b []byte) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(b, &in); err != nil {
		return Intent{}, fmt.Errorf("protocol: decode intent: %w", err)
	}
	if err := in.Validate(); err != nil {
		return Intent{}, err
	}
	return in, nil
}

// Apply maps a letter, backspace or submit intent onto round. newRound is
// left to whoever owns the round and reports game.ErrIgnored here.
func (i Intent) Apply(round *game.Round) error {
	switch i.Type {
	case TypeAddLetter:
		return round.AppendLetter(i.Actor, i.Letter)
	case TypeBackspace:
		return round.DeleteLetter(i.Actor)
	case TypeSubmitWord:
		return round.SubmitRow(i.Actor)
	default:
		return game.ErrIgnored
	}
}

// GameState is the full authoritative state broadcast after every accepted mutation.
// The embedded snapshot contributes board, colors, keyboardColors, row, col,
// rows, cols, phase, winner and (when revealed) targetWord.
type GameState struct {
	Type        Type   `json:"type"`
	RoomID      string `json:"roomId"`
	Round       int    `json:"round"`
	GamesPlayed int    `json:"gamesPlayed"`
	game.Snapshot
}

// NewGameState wraps a snapshot for broadcast.
func NewGameState(roomID string, round, gamesPlayed int, snap game.Snapshot) GameState {
	return GameState{Type: TypeGameState, RoomID: roomID, Round: round, GamesPlayed: gamesPlayed, Snapshot: snap}
}

// Validation is a recoverable rejection sent only to the actor that caused it.
type Validation struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// NewValidation builds a validation message.
func NewValidation(msg string) Validation {
	return Validation{Type: TypeValidation, Message: msg}
}

// DecodeOutbound parses an authority message into *GameState or *Validation.
func DecodeOutbound(b []byte) (any, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("protocol: decode message: %w", err)
	}
	switch head.Type {
	case TypeGameState:
		var gs GameState
		if err := json.Unmarshal(b, &gs); err != nil {
			return nil, fmt.Errorf("protocol: decode gameState: %w", err)
		}
		return &gs, nil
	case TypeValidation:
		var v Validation
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("protocol: decode validation: %w", err)
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", head.Type)
	}
}
