// internal/room/manager.go
//
// Manager holds the running rooms keyed by ID, so each /rooms/{id} is its own
// isolated board. Rooms are started on demand, rebuilt from stored history
// when a known ID is requested after a restart, and reaped when idle.

package room

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle-live/internal/daily"
	"github.com/robalobadob/wordle-live/internal/game"
	"github.com/robalobadob/wordle-live/internal/store"
)

// ErrNotFound is returned by Get for an unknown room.
var ErrNotFound = errors.New("room: not found")

// ManagerConfig is shared by every room a Manager starts.
type ManagerConfig struct {
	Rows       int
	Visibility game.Visibility
	Allowed    func(string) bool
	Words      WordSource
	Daily      daily.Schedule
	Publisher  Publisher
	History    store.History
	Users      store.Users
	// IdleTimeout reaps rooms with no requests for this long; zero disables reaping.
	IdleTimeout time.Duration
	// Observers reports how many clients watch a room; watched rooms are never reaped.
	Observers func(roomID string) int
	// OnClose runs after a room is reaped or closed.
	OnClose func(roomID string)
	Now     func() time.Time
}

type managed struct {
	room   *Room
	cancel context.CancelFunc
}

// Manager is safe for concurrent use.
type Manager struct {
	cfg    ManagerConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*managed
}

// NewManager starts the reaper (when IdleTimeout > 0). Rooms stop when ctx is cancelled or Shutdown is called.
func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	mctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		cfg:    cfg,
		ctx:    mctx,
		cancel: cancel,
		rooms:  make(map[string]*managed),
	}
	if cfg.IdleTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

func (m *Manager) roomConfig(id, target string) Config {
	return Config{
		ID:         id,
		Rows:       m.cfg.Rows,
		Visibility: m.cfg.Visibility,
		Allowed:    m.cfg.Allowed,
		Target:     target,
		Words:      m.cfg.Words,
		Publisher:  m.cfg.Publisher,
		History:    m.cfg.History,
		Users:      m.cfg.Users,
		Now:        m.cfg.Now,
	}
}

// start creates and runs a room. Callers hold m.mu.
func (m *Manager) start(ctx context.Context, cfg Config) (*Room, error) {
	r, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rctx, cancel := context.WithCancel(m.ctx)
	m.rooms[cfg.ID] = &managed{room: r, cancel: cancel}
	go r.Run(rctx)
	log.Info().Str("room", cfg.ID).Msg("room started")
	return r, nil
}

// Create starts a room with a fresh ID. An empty target draws from the word source.
func (m *Manager) Create(ctx context.Context, target string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ctx.Err(); err != nil {
		return nil, err
	}
	id, err := m.newRoomID()
	if err != nil {
		return nil, err
	}
	return m.start(ctx, m.roomConfig(id, target))
}

// Get returns a running room, or rebuilds it from stored history.
// Today's daily room is created on first use.
func (m *Manager) Get(ctx context.Context, id string) (*Room, error) {
	if id == daily.RoomID(m.cfg.Now()) {
		return m.Daily(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if mr, ok := m.rooms[id]; ok {
		return mr.room, nil
	}
	if m.cfg.History == nil {
		return nil, ErrNotFound
	}
	if _, err := m.cfg.History.LatestRound(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cfg := m.roomConfig(id, "")
	if strings.HasPrefix(id, daily.RoomPrefix) {
		cfg = m.dailyConfig(id, "")
	}
	return m.start(ctx, cfg)
}

// dailyConfig stops a daily room from starting rounds once its date is over,
// whether it is still running at midnight or rebuilt later.
func (m *Manager) dailyConfig(id, target string) Config {
	cfg := m.roomConfig(id, target)
	date, ok := daily.DateFromRoomID(id)
	if !ok {
		cfg.Words = nil
		return cfg
	}
	cfg.ClosesAt = date.AddDate(0, 0, 1)
	return cfg
}

// Daily returns the shared room for today's date, whose first round plays the
// scheduled daily word.
func (m *Manager) Daily(ctx context.Context) (*Room, error) {
	now := m.cfg.Now()
	id := daily.RoomID(now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if mr, ok := m.rooms[id]; ok {
		return mr.room, nil
	}
	_, _, word := m.cfg.Daily.Word(now)
	if word == "" {
		return nil, errors.New("room: no daily word available")
	}
	return m.start(ctx, m.dailyConfig(id, word))
}

// Close stops one room.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	mr, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	mr.cancel()
	<-mr.room.Done()
	if m.cfg.OnClose != nil {
		m.cfg.OnClose(id)
	}
	log.Info().Str("room", id).Msg("room closed")
}

// Len returns the number of running rooms.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Shutdown stops every room.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	rooms := make([]*managed, 0, len(m.rooms))
	for id, mr := range m.rooms {
		rooms = append(rooms, mr)
		delete(m.rooms, id)
	}
	m.mu.Unlock()
	for _, mr := range rooms {
		<-mr.room.Done()
	}
}

// newRoomID generates a crypto-random room ID that doesn't collide with a running room.
// Callers hold m.mu.
func (m *Manager) newRoomID() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("room id: %w", err)
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)
		if _, exists := m.rooms[id]; !exists {
			return id, nil
		}
	}
}

// reaperLoop periodically closes rooms that have been idle longer than IdleTimeout.
func (m *Manager) reaperLoop() {
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.reap()
		}
	}
}

func (m *Manager) reap() {
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []string
	for id, mr := range m.rooms {
		if !mr.room.LastActive().Before(cutoff) {
			continue
		}
		if m.cfg.Observers != nil && m.cfg.Observers(id) > 0 {
			continue
		}
		idle = append(idle, id)
	}
	m.mu.Unlock()

	for _, id := range idle {
		log.Debug().Str("room", id).Msg("reaping idle room")
		m.Close(id)
	}
}
