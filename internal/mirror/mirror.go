// Package mirror keeps an observer's read-only copy of a room.
//
// A View is replaced wholesale by every gameState snapshot, whatever order
// they arrive in; nothing in it is mutated locally. Validation messages go to
// a Banner, which clears itself after a fixed timeout.
package mirror

import (
	"fmt"
	"sync"
	"time"

	"github.com/robalobadob/wordle-live/internal/protocol"
)

// DefaultBannerTimeout is how long a validation message stays visible.
const DefaultBannerTimeout = 2 * time.Second

// View is the last authoritative state received. Safe for concurrent use.
type View struct {
	mu     sync.RWMutex
	state  *protocol.GameState
	banner *Banner
}

// NewView returns an empty view whose validation messages go to banner (may be nil).
func NewView(banner *Banner) *View {
	return &View{banner: banner}
}

// Apply replaces the view with gs.
func (v *View) Apply(gs protocol.GameState) {
	v.mu.Lock()
	v.state = &gs
	v.mu.Unlock()
}

// State returns the current state and whether one has been received.
// The returned value shares no slices with the view.
func (v *View) State() (protocol.GameState, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state == nil {
		return protocol.GameState{}, false
	}
	gs := *v.state
	gs.Board = copyRows(v.state.Board)
	gs.Colors = copyRows(v.state.Colors)
	return gs, true
}

func copyRows[T any](rows [][]T) [][]T {
	out := make([][]T, len(rows))
	for i := range rows {
		out[i] = append([]T(nil), rows[i]...)
	}
	return out
}

// Handle decodes one authority message and applies it.
func (v *View) Handle(b []byte) error {
	msg, err := protocol.DecodeOutbound(b)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case *protocol.GameState:
		v.Apply(*m)
	case *protocol.Validation:
		if v.banner != nil {
			v.banner.Show(m.Message)
		}
	default:
		return fmt.Errorf("mirror: unexpected message %T", msg)
	}
	return nil
}

// Banner is a transient message with a cancellable clear timer.
type Banner struct {
	timeout  time.Duration
	onChange func(msg string)

	mu    sync.Mutex
	msg   string
	gen   uint64
	timer *time.Timer
}

// NewBanner returns a banner that clears after timeout (DefaultBannerTimeout
// when zero). onChange, when set, is called with the new message on every
// show and clear.
func NewBanner(timeout time.Duration, onChange func(msg string)) *Banner {
	if timeout <= 0 {
		timeout = DefaultBannerTimeout
	}
	return &Banner{timeout: timeout, onChange: onChange}
}

// Show cancels any pending clear, displays msg and schedules a new clear.
func (b *Banner) Show(msg string) {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.msg = msg
	b.timer = time.AfterFunc(b.timeout, func() { b.clear(gen) })
	b.mu.Unlock()
	b.notify(msg)
}

// clear empties the banner unless a newer message replaced it.
func (b *Banner) clear(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.msg = ""
	b.timer = nil
	b.mu.Unlock()
	b.notify("")
}

func (b *Banner) notify(msg string) {
	if b.onChange != nil {
		b.onChange(msg)
	}
}

// Current returns the visible message, or "".
func (b *Banner) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msg
}

// Stop cancels a pending clear and leaves the banner empty.
func (b *Banner) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	b.msg = ""
}
