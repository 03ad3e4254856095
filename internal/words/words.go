// internal/words/words.go
//
// Provides word list management for the game engine.
//
// Responsibilities:
//   - Load answer and allowed guess lists from configured files or fall back to the
//     embedded lists in the assets package.
//   - Keep only words of the configured length (5 by default; 6 for PICKLE-style boards).
//   - Maintain sets for quick lookups (answers only, answers∪guesses).
//   - Supply utility functions like RandomAnswer, IsAllowed, IsAnswer, and Stats.
//
// Load behavior:
//   1. If both AnswersFile and AllowedFile are set, load answers from the first
//      and allowed guesses from the second.
//   2. If only AllowedFile is set, use that file for both answers and allowed guesses.
//   3. Otherwise use the embedded assets lists.
//
// Constraints:
//   • Words are alphabetic A–Z and normalized to uppercase.
//   • The package-level default is initialised once (sync.Once).

package words

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/robalobadob/wordle-live/assets"
)

// DefaultLength is the classic five-letter board.
const DefaultLength = 5

// Config selects the lists to load.
type Config struct {
	Length      int
	AnswersFile string
	AllowedFile string
}

// Lists is a loaded pair of answer/allowed lists for one word length.
type Lists struct {
	length     int
	answers    []string            // canonical answers
	answersSet map[string]struct{} // answers only
	allowedSet map[string]struct{} // answers ∪ guesses
}

// Load reads the lists selected by cfg.
// Returns an error if no answers of the configured length remain.
func Load(cfg Config) (*Lists, error) {
	n := cfg.Length
	if n <= 0 {
		n = DefaultLength
	}

	var ansList, allowList []string
	var err error
	switch {
	case cfg.AnswersFile != "" && cfg.AllowedFile != "":
		if ansList, err = readWordFile(cfg.AnswersFile); err != nil {
			return nil, err
		}
		if allowList, err = readWordFile(cfg.AllowedFile); err != nil {
			return nil, err
		}
	case cfg.AllowedFile != "":
		if allowList, err = readWordFile(cfg.AllowedFile); err != nil {
			return nil, err
		}
		ansList = allowList
	default:
		if ansList, err = assets.AnswersList(); err != nil {
			return nil, fmt.Errorf("words: embedded answers: %w", err)
		}
		if allowList, err = assets.AllowedList(); err != nil {
			return nil, fmt.Errorf("words: embedded allowed: %w", err)
		}
	}

	l := &Lists{length: n}
	l.answers = filterLength(ansList, n)
	l.answersSet = toSet(l.answers)

	// Ensure all answers are also marked as allowed
	l.allowedSet = toSet(l.answers)
	for _, w := range filterLength(allowList, n) {
		l.allowedSet[w] = struct{}{}
	}

	if len(l.answers) == 0 {
		return nil, fmt.Errorf("words: no %d-letter answers loaded", n)
	}
	return l, nil
}

// readWordFile loads one word per line from a file, skipping blanks and # comments.
func readWordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		out = append(out, strings.ToUpper(w))
	}
	return out, sc.Err()
}

// filterLength keeps valid alphabetic words of length n, uppercased, de-duplicated.
func filterLength(list []string, n int) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, w := range list {
		w = strings.ToUpper(strings.TrimSpace(w))
		if len(w) != n || !isAlpha(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// toSet converts a list of strings into a lookup set.
func toSet(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, w := range list {
		m[w] = struct{}{}
	}
	return m
}

// isAlpha reports whether s is all uppercase ASCII letters.
func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Length returns the word length these lists hold.
func (l *Lists) Length() int { return l.length }

// Answers returns the canonical answer list. Callers must not modify it.
func (l *Lists) Answers() []string { return l.answers }

// RandomAnswer returns a cryptographically random answer.
func (l *Lists) RandomAnswer() string {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(l.answers))))
	if err != nil {
		return l.answers[0]
	}
	return l.answers[nBig.Int64()]
}

// IsAllowed reports whether w is a valid guess (answers ∪ guesses).
func (l *Lists) IsAllowed(w string) bool {
	_, ok := l.allowedSet[strings.ToUpper(w)]
	return ok
}

// IsAnswer reports whether w is an answer word.
func (l *Lists) IsAnswer(w string) bool {
	_, ok := l.answersSet[strings.ToUpper(w)]
	return ok
}

// Stats returns counts of loaded words: (answers, allowed).
func (l *Lists) Stats() (answersCount int, allowedCount int) {
	return len(l.answers), len(l.allowedSet)
}

// --- package-level default ---

var (
	initOnce   sync.Once
	defLists   *Lists
	initialErr error
)

// Init loads the default lists exactly once.
func Init(cfg Config) error {
	initOnce.Do(func() {
		defLists, initialErr = Load(cfg)
	})
	return initialErr
}

// Default returns the lists loaded by Init.
func Default() (*Lists, error) {
	if defLists == nil {
		if initialErr != nil {
			return nil, initialErr
		}
		return nil, errors.New("words: Init has not been called")
	}
	return defLists, nil
}
