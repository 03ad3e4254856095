// internal/daily/daily.go
//
// Deterministic daily word selection.
// Every server with the same salt and word list picks the same word for a
// UTC date, so the shared daily room survives restarts and scales out.

package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// RoomPrefix prefixes the ID of a date's shared room.
const RoomPrefix = "daily-"

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseDateKey validates a YYYY-MM-DD key.
func ParseDateKey(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("daily: invalid date %q", s)
	}
	return t, nil
}

// WordIndex returns a deterministic index for a date using HMAC(salt, YYYY-MM-DD) % answersLen.
func WordIndex(date time.Time, salt string, answersLen int) int {
	if answersLen <= 0 {
		return 0
	}
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	// take first 8 bytes to uint64 for modulus distribution
	n := binary.BigEndian.Uint64(sum[:8])
	return int(n % uint64(answersLen))
}

// Schedule picks the daily word from a fixed answer list.
type Schedule struct {
	Salt    string
	Answers []string
}

// Word returns the date key, word index and answer for t.
func (s Schedule) Word(t time.Time) (date string, idx int, answer string) {
	date = DateKey(t)
	if len(s.Answers) == 0 {
		return date, 0, ""
	}
	idx = WordIndex(t, s.Salt, len(s.Answers))
	return date, idx, s.Answers[idx]
}

// RoomID returns the ID of the shared room for t's date.
func RoomID(t time.Time) string { return RoomPrefix + DateKey(t) }

// DateFromRoomID reports the date of a daily room ID.
func DateFromRoomID(id string) (time.Time, bool) {
	key, ok := strings.CutPrefix(id, RoomPrefix)
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseDateKey(key)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
