// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// This is a lightweight persistence layer used for ephemeral rooms,
// primarily in development/testing, or when durability is not required.
//
// Characteristics:
//   - Rounds, intents and results are kept in maps keyed by room ID.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/wordle-live/internal/game"
)

type roundKey struct {
	room  string
	round int
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu      sync.RWMutex
	rounds  map[string][]RoundInfo    // by room, ascending round
	intents map[roundKey][]game.Entry // by (room, round), ascending seq
	results map[roundKey]Result       // one per round
	users   map[string]*User          // by ID
	byName  map[string]*User          // by lowercased username
	now     func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{
		rounds:  make(map[string][]RoundInfo),
		intents: make(map[roundKey][]game.Entry),
		results: make(map[roundKey]Result),
		users:   make(map[string]*User),
		byName:  make(map[string]*User),
		now:     time.Now,
	}
}

func (m *memory) StartRound(ctx context.Context, info RoundInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.rounds[info.RoomID]
	for _, r := range list {
		if r.Round == info.Round {
			return nil
		}
	}
	list = append(list, info)
	sort.Slice(list, func(i, j int) bool { return list[i].Round < list[j].Round })
	m.rounds[info.RoomID] = list
	return nil
}

func (m *memory) LatestRound(ctx context.Context, roomID string) (RoundInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.rounds[roomID]
	if len(list) == 0 {
		return RoundInfo{}, ErrNotFound
	}
	return list[len(list)-1], nil
}

func (m *memory) AppendIntent(ctx context.Context, roomID string, round int, e game.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := roundKey{roomID, round}
	for _, prev := range m.intents[k] {
		if prev.Seq == e.Seq {
			return nil
		}
	}
	m.intents[k] = append(m.intents[k], e)
	return nil
}

func (m *memory) LoadIntents(ctx context.Context, roomID string, round int) ([]game.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.intents[roundKey{roomID, round}]
	out := make([]game.Entry, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memory) SaveResult(ctx context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := roundKey{r.RoomID, r.Round}
	if _, dup := m.results[k]; dup {
		return nil
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now().UTC()
	}
	m.results[k] = r
	return nil
}

func (m *memory) Leaderboard(ctx context.Context, date string, limit int) ([]LeaderboardRow, error) {
	if date == "" {
		return []LeaderboardRow{}, nil
	}
	m.mu.RLock()
	var won []Result
	for _, r := range m.results {
		if r.Date == date && r.Outcome == game.PhaseWon {
			won = append(won, r)
		}
	}
	m.mu.RUnlock()

	// Same ordering as the SQL query: elapsed, guesses, created_at.
	sort.Slice(won, func(i, j int) bool {
		a, b := won[i], won[j]
		if a.ElapsedMs != b.ElapsedMs {
			return a.ElapsedMs < b.ElapsedMs
		}
		if a.Guesses != b.Guesses {
			return a.Guesses < b.Guesses
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if limit > 0 && len(won) > limit {
		won = won[:limit]
	}
	out := make([]LeaderboardRow, 0, len(won))
	for _, r := range won {
		out = append(out, LeaderboardRow{Winner: r.Winner, RoomID: r.RoomID, Guesses: r.Guesses, ElapsedMs: r.ElapsedMs})
	}
	return out, nil
}

func (m *memory) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(username)
	if _, ok := m.byName[key]; ok {
		return nil, ErrUsernameTaken
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    m.now().UTC().Truncate(time.Second),
	}
	m.users[u.ID] = u
	m.byName[key] = u
	cp := *u
	return &cp, nil
}

func (m *memory) UserByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memory) UserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memory) RecordOutcome(ctx context.Context, username string, won bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return ErrNotFound
	}
	u.GamesPlayed++
	if won {
		u.Wins++
		u.Streak++
	} else {
		u.Streak = 0
	}
	return nil
}

func (m *memory) Close() error { return nil }
