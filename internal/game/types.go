// internal/game/types.go
//
// Core type definitions for the shared-board game engine.
// Defines:
//   - Verdict: per-letter result of a submitted guess (correct/misplaced/incorrect).
//   - Cell: an explicit optional letter on the board.
//   - Phase: in_progress → won | exhausted.
//   - Entry: one applied intent in the round history.

package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Verdict represents the evaluation result for a single letter cell.
// The zero value is the neutral state of a cell that has not been submitted,
// and the "unknown" state of a keyboard key.
type Verdict string

const (
	VerdictNone      Verdict = ""
	VerdictIncorrect Verdict = "incorrect"
	VerdictMisplaced Verdict = "misplaced"
	VerdictCorrect   Verdict = "correct"
)

// rank orders verdicts by strength of evidence: correct > misplaced > incorrect > none.
func (v Verdict) rank() int {
	switch v {
	case VerdictCorrect:
		return 3
	case VerdictMisplaced:
		return 2
	case VerdictIncorrect:
		return 1
	default:
		return 0
	}
}

// Stronger reports whether v carries more evidence than o.
func (v Verdict) Stronger(o Verdict) bool { return v.rank() > o.rank() }

// Phase is the coarse lifecycle state of a round.
type Phase string

const (
	PhaseInProgress Phase = "in_progress"
	PhaseWon        Phase = "won"
	PhaseExhausted  Phase = "exhausted"
)

// Terminal reports whether no further mutations are accepted.
func (p Phase) Terminal() bool { return p == PhaseWon || p == PhaseExhausted }

// Cell is one board square. The zero value is empty.
// JSON: null when empty, a one-letter string otherwise.
type Cell struct {
	letter byte
	filled bool
}

// Filled returns a cell holding the uppercase letter l.
func Filled(l byte) Cell { return Cell{letter: l, filled: true} }

// Letter returns the cell letter and whether the cell holds one.
func (c Cell) Letter() (byte, bool) { return c.letter, c.filled }

// Empty reports whether the cell holds no letter.
func (c Cell) Empty() bool { return !c.filled }

// Equal reports whether two cells hold the same optional letter.
func (c Cell) Equal(o Cell) bool { return c == o }

func (c Cell) String() string {
	if !c.filled {
		return ""
	}
	return string(c.letter)
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.filled {
		return []byte("null"), nil
	}
	return json.Marshal(string(c.letter))
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*c = Cell{}
		return nil
	}
	l, ok := normalizeLetter(*s)
	if !ok {
		return fmt.Errorf("game: invalid cell %q", *s)
	}
	*c = Filled(l)
	return nil
}

// EntryKind names an applied intent.
type EntryKind string

const (
	EntryLetter    EntryKind = "letter"
	EntryBackspace EntryKind = "backspace"
	EntrySubmit    EntryKind = "submit"
)

// Entry is one applied intent in the append-only round history.
type Entry struct {
	Seq    int       `json:"seq"`
	Kind   EntryKind `json:"kind"`
	Letter string    `json:"letter,omitempty"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// ErrIgnored is returned for operations that have no effect: appending to a
// full row, deleting at the row start, or any mutation after the round ended.
// Callers drop it silently.
var ErrIgnored = errors.New("game: operation ignored")

// ValidationError is a recoverable, user-visible rejection of a submit.
// State is never mutated when it is returned.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const (
	MsgNotEnoughLetters = "Not enough letters"
	MsgNotInWordList    = "Not in word list"
)

// normalizeLetter maps a one-letter string to its uppercase ASCII byte.
func normalizeLetter(s string) (byte, bool) {
	if len(s) != 1 {
		return 0, false
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return 0, false
	}
	return c, true
}
