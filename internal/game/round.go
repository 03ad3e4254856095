// internal/game/round.go
//
// Authoritative state machine for one round on a shared board.
// Responsibilities:
//   - Create rounds with R rows × C columns (C = target length).
//   - Apply the three mutating operations: append letter, delete letter, submit row.
//   - Score submitted rows and merge the keyboard.
//   - Track phase transitions: in_progress → won | exhausted.
//   - Produce redacted / revealed snapshots for broadcast.
//
// A Round is not safe for concurrent use; the owning room serialises access.
package game

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRows is the number of guesses per round.
const DefaultRows = 6

// Options tune a round. The zero value uses DefaultRows and accepts any complete row.
type Options struct {
	Rows int
	// Allowed, when set, rejects complete rows that are not valid words.
	Allowed func(word string) bool
	// Now stamps history entries; defaults to time.Now.
	Now func() time.Time
}

// Round holds the state of a single round.
type Round struct {
	target   []byte
	rows     int
	cols     int
	board    [][]Cell
	colors   [][]Verdict
	keyboard Keyboard
	row, col int
	winner   string
	phase    Phase
	history  []Entry

	allowed func(string) bool
	now     func() time.Time
}

// NewRound starts a round against target. The target must be alphabetic.
func NewRound(target string, opts Options) (*Round, error) {
	t := strings.ToUpper(strings.TrimSpace(target))
	if t == "" {
		return nil, fmt.Errorf("game: empty target")
	}
	for i := 0; i < len(t); i++ {
		if idx(t[i]) < 0 {
			return nil, fmt.Errorf("game: target %q is not alphabetic", target)
		}
	}
	rows := opts.Rows
	if rows <= 0 {
		rows = DefaultRows
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	r := &Round{
		target:  []byte(t),
		rows:    rows,
		cols:    len(t),
		board:   make([][]Cell, rows),
		colors:  make([][]Verdict, rows),
		phase:   PhaseInProgress,
		allowed: opts.Allowed,
		now:     now,
	}
	for i := range r.board {
		r.board[i] = make([]Cell, r.cols)
		r.colors[i] = make([]Verdict, r.cols)
	}
	return r, nil
}

// AppendLetter writes letter at the cursor and advances the column.
// Returns ErrIgnored when the row is full, guesses are exhausted, the round
// has ended, or letter is not A-Z.
func (r *Round) AppendLetter(actor, letter string) error {
	l, ok := normalizeLetter(letter)
	if !ok || r.phase.Terminal() || r.row >= r.rows || r.col >= r.cols {
		return ErrIgnored
	}
	r.board[r.row][r.col] = Filled(l)
	r.colors[r.row][r.col] = VerdictNone
	r.col++
	r.record(EntryLetter, string(l), actor)
	return nil
}

// DeleteLetter moves the cursor back one column and clears that cell.
func (r *Round) DeleteLetter(actor string) error {
	if r.phase.Terminal() || r.row >= r.rows || r.col <= 0 {
		return ErrIgnored
	}
	r.col--
	r.board[r.row][r.col] = Cell{}
	r.record(EntryBackspace, "", actor)
	return nil
}

// SubmitRow scores the cursor row.
//
// Returns ErrIgnored after the round ended, or a *ValidationError when the
// row is incomplete (or not an allowed word); neither changes state.
// On success the row is scored, the keyboard merged, the winner set on a full
// match, and the cursor moved to the start of the next row.
func (r *Round) SubmitRow(actor string) error {
	if r.phase.Terminal() || r.row >= r.rows {
		return ErrIgnored
	}
	guess := make([]byte, r.cols)
	for i, c := range r.board[r.row] {
		l, ok := c.Letter()
		if !ok {
			return &ValidationError{Message: MsgNotEnoughLetters}
		}
		guess[i] = l
	}
	if r.allowed != nil && !r.allowed(string(guess)) {
		return &ValidationError{Message: MsgNotInWordList}
	}

	verdicts := Score(guess, r.target)
	copy(r.colors[r.row], verdicts)
	r.keyboard = r.keyboard.Merge(guess, verdicts)
	r.record(EntrySubmit, "", actor)

	r.row++
	r.col = 0
	switch {
	case allCorrect(verdicts):
		r.winner = actor
		r.phase = PhaseWon
	case r.row >= r.rows:
		r.phase = PhaseExhausted
	}
	return nil
}

func (r *Round) record(kind EntryKind, letter, actor string) {
	r.history = append(r.history, Entry{
		Seq:    len(r.history) + 1,
		Kind:   kind,
		Letter: letter,
		Actor:  actor,
		At:     r.now().UTC(),
	})
}

// Phase returns the current lifecycle phase.
func (r *Round) Phase() Phase { return r.phase }

// Winner returns the actor whose row matched the target, or "".
func (r *Round) Winner() string { return r.winner }

// Target returns the uppercase target word. Authority-side only.
func (r *Round) Target() string { return string(r.target) }

// Cursor returns the (row, col) of the next letter.
func (r *Round) Cursor() (row, col int) { return r.row, r.col }

// Dims returns (rows, cols).
func (r *Round) Dims() (rows, cols int) { return r.rows, r.cols }

// Guesses returns the number of submitted rows.
func (r *Round) Guesses() int { return r.row }

// Keyboard returns the current keyboard status.
func (r *Round) Keyboard() Keyboard { return r.keyboard }

// History returns a copy of the applied intents in order.
func (r *Round) History() []Entry {
	out := make([]Entry, len(r.history))
	copy(out, r.history)
	return out
}

// Snapshot is a deep copy of a round's observable state.
type Snapshot struct {
	Board    [][]Cell    `json:"board"`
	Colors   [][]Verdict `json:"colors"`
	Keyboard Keyboard    `json:"keyboardColors"`
	Row      int         `json:"row"`
	Col      int         `json:"col"`
	Rows     int         `json:"rows"`
	Cols     int         `json:"cols"`
	Phase    Phase       `json:"phase"`
	Winner   string      `json:"winner,omitempty"`
	Target   string      `json:"targetWord,omitempty"`
}

// Snapshot copies the round state. The target is included only when reveal is set.
func (r *Round) Snapshot(reveal bool) Snapshot {
	s := Snapshot{
		Board:    make([][]Cell, r.rows),
		Colors:   make([][]Verdict, r.rows),
		Keyboard: r.keyboard,
		Row:      r.row,
		Col:      r.col,
		Rows:     r.rows,
		Cols:     r.cols,
		Phase:    r.phase,
		Winner:   r.winner,
	}
	for i := range r.board {
		s.Board[i] = append([]Cell(nil), r.board[i]...)
		s.Colors[i] = append([]Verdict(nil), r.colors[i]...)
	}
	if reveal {
		s.Target = string(r.target)
	}
	return s
}

// Visibility decides when observers learn the target word.
type Visibility string

const (
	// RevealOnFinish withholds the target until the round is won or exhausted.
	RevealOnFinish Visibility = "on_finish"
	// RevealAlways includes the target in every broadcast.
	RevealAlways Visibility = "always"
)

// Public returns the projection observers may see under policy v.
func (r *Round) Public(v Visibility) Snapshot {
	return r.Snapshot(v == RevealAlways || r.phase.Terminal())
}

// Replay rebuilds a round by re-applying history entries against target.
// Entries that would now be ignored are skipped; a validation failure means
// the log does not belong to this target and is returned as an error.
func Replay(target string, opts Options, entries []Entry) (*Round, error) {
	r, err := NewRound(target, opts)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		at := e.At
		r.now = func() time.Time { return at }
		var err error
		switch e.Kind {
		case EntryLetter:
			err = r.AppendLetter(e.Actor, e.Letter)
		case EntryBackspace:
			err = r.DeleteLetter(e.Actor)
		case EntrySubmit:
			err = r.SubmitRow(e.Actor)
		default:
			return nil, fmt.Errorf("game: replay entry %d: unknown kind %q", e.Seq, e.Kind)
		}
		if err != nil && !errors.Is(err, ErrIgnored) {
			return nil, fmt.Errorf("game: replay entry %d: %w", e.Seq, err)
		}
	}
	r.now = opts.Now
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}
