package game

import (
	"encoding/json"
	"fmt"
)

// Keyboard is the per-letter status A..Z. It is a value type: Merge returns a
// new Keyboard and never touches the receiver, so a published snapshot can be
// read while the round moves on.
type Keyboard [26]Verdict

// Get returns the status of letter l (A-Z); unknown letters report VerdictNone.
func (k Keyboard) Get(l byte) Verdict {
	if j := idx(l); j >= 0 {
		return k[j]
	}
	return VerdictNone
}

// Merge folds one scored row into the keyboard using the precedence
// correct > misplaced > incorrect > unknown. Statuses are never downgraded.
func (k Keyboard) Merge(letters []byte, verdicts []Verdict) Keyboard {
	out := k
	for i, l := range letters {
		if i >= len(verdicts) {
			break
		}
		j := idx(l)
		if j < 0 {
			continue
		}
		if verdicts[i].Stronger(out[j]) {
			out[j] = verdicts[i]
		}
	}
	return out
}

// MarshalJSON encodes every letter, e.g. {"A":"correct","B":"",...}.
func (k Keyboard) MarshalJSON() ([]byte, error) {
	m := make(map[string]Verdict, len(k))
	for i, v := range k {
		m[string(rune('A'+i))] = v
	}
	return json.Marshal(m)
}

func (k *Keyboard) UnmarshalJSON(b []byte) error {
	var m map[string]Verdict
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out Keyboard
	for key, v := range m {
		l, ok := normalizeLetter(key)
		if !ok {
			return fmt.Errorf("game: invalid keyboard key %q", key)
		}
		out[idx(l)] = v
	}
	*k = out
	return nil
}
