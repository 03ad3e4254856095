// internal/store/store.go
//
// Persistence contracts for rooms and accounts.
//
// Two families of data are stored:
//   - Round history: which target each round of a room used, the applied
//     intents in order, and the outcome once the round ended.
//   - Users: accounts created through /auth/signup plus their play counters.
//
// Implementations: memory (this package, ephemeral) and SQLite (sqlite.go).

package store

import (
	"context"
	"errors"
	"time"

	"github.com/robalobadob/wordle-live/internal/game"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUsernameTaken is returned by CreateUser for a duplicate username.
	ErrUsernameTaken = errors.New("store: username taken")
)

// RoundInfo records the start of a round.
type RoundInfo struct {
	RoomID    string    `json:"roomId"`
	Round     int       `json:"round"`
	Target    string    `json:"-"`
	StartedAt time.Time `json:"startedAt"`
}

// Result is the outcome of a finished round.
type Result struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	Round     int        `json:"round"`
	Date      string     `json:"date,omitempty"` // daily challenge date (YYYY-MM-DD); empty off the leaderboard
	Target    string     `json:"target"`
	Winner    string     `json:"winner,omitempty"`
	Outcome   game.Phase `json:"outcome"`
	Guesses   int        `json:"guesses"`
	ElapsedMs int64      `json:"elapsedMs"`
	CreatedAt time.Time  `json:"createdAt"`
}

// LeaderboardRow is one winning round for a date.
type LeaderboardRow struct {
	Winner    string `json:"winner"`
	RoomID    string `json:"roomId"`
	Guesses   int    `json:"guesses"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// User matches the users table shape.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	GamesPlayed  int       `json:"gamesPlayed"`
	Wins         int       `json:"wins"`
	Streak       int       `json:"streak"`
}

// History persists rounds, their applied intents, and results.
type History interface {
	// StartRound records the target of a new round. Starting the same
	// (room, round) twice keeps the first record.
	StartRound(ctx context.Context, info RoundInfo) error

	// LatestRound returns the highest-numbered round of a room or ErrNotFound.
	LatestRound(ctx context.Context, roomID string) (RoundInfo, error)

	// AppendIntent stores one applied intent. Entries are keyed by Seq.
	AppendIntent(ctx context.Context, roomID string, round int, e game.Entry) error

	// LoadIntents returns the applied intents of a round ordered by Seq.
	LoadIntents(ctx context.Context, roomID string, round int) ([]game.Entry, error)

	// SaveResult stores the outcome of a round; duplicates are ignored.
	SaveResult(ctx context.Context, r Result) error

	// Leaderboard returns the won rounds dated date, fastest first. Undated
	// results never appear.
	Leaderboard(ctx context.Context, date string, limit int) ([]LeaderboardRow, error)
}

// Users persists accounts.
type Users interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)

	// RecordOutcome bumps games played and updates wins/streak for a username.
	// Returns ErrNotFound for actors without an account (guests).
	RecordOutcome(ctx context.Context, username string, won bool) error
}

// Store is the full persistence surface used by the server.
type Store interface {
	History
	Users
	Close() error
}
